// Package serialization provides the binary model file of the boosting engine.
//
// A model file stores the training parameters and every tree of every round:
//
//	Format Structure:
//	  [0x00: Magic "TGBM"]
//	  [0x04: Version (uint32 LE)]
//	  [0x08: Flags (uint32 LE)]
//	  [0x0C: reserved]
//	  [0x10: Header Size (uint64 LE)]
//	  [0x18: Data Size (uint64 LE)]
//	  [0x20: SHA-256 of the data section (32 bytes)]
//	  [0x40: Header: JSON metadata]
//	  [Node data: fixed-size little-endian records, 64-byte aligned]
//
// The JSON header records the parameters, a run id and, per tree, the round,
// the class and where its nodes live in the data section.
//
// Example usage:
//
//	// Save a model
//	w, err := serialization.NewModelWriter("tgbm.model")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.WriteModel(&serialization.Model{Param: p, Trees: trees}, nil); err != nil {
//	    log.Fatal(err)
//	}
//	w.Close()
//
//	// Load a model
//	m, err := serialization.Load("tgbm.model")
//	if err != nil {
//	    log.Fatal(err)
//	}
package serialization
