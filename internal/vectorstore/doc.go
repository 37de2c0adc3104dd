// Package vectorstore is a flat inner-product index over L2-normalized
// vectors. Ordinal ids are insertion positions: they start at zero, grow by
// one per Add, and are never reused.
//
// The index lives in memory and is written whole to a single binary file:
//
//	[4B magic "UMSV"] [4B version] [4B dim] [8B count]
//	[count × dim × 4B float32], little endian
package vectorstore
