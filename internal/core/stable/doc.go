// Package stable lays durable data structures directly over a linear memory.
//
// A MemoryManager splits one port.Memory into up to 255 virtual regions, each
// addressed by a MemoryID that must stay bound to the same structure for the
// lifetime of the memory image. Regions are built from fixed-size buckets that
// are handed out in allocation order and recorded in a header page, so the
// same tag yields the same bytes after a restart.
//
// Two structures live on regions:
//
//   - Cell: a single encoded value, used as a monotonic id counter.
//   - BTreeMap: an ordered uint64-keyed map whose nodes are fixed-size chunks
//     of the region, with values stored inline under a bounded encoding.
//
// Every mutation is written through to the region before the call returns.
// Structures only cache what they can rebuild from the region on open.
//
// Layout of the region allocator header (page 0):
//
//	0      magic "MGR"
//	3      layout version
//	4      allocated bucket count (u16)
//	6      bucket size in pages   (u16)
//	40     region sizes in pages  (255 x u64)
//	2080   bucket owners          (32768 x u8, 0xFF = free)
//
// Buckets start at page 1. All integers are little endian.
package stable
