package edict

import "sync"

var writerPool = &sync.Pool{
	New: func() any {
		return &Writer{}
	},
}

func releaseWriter(w *Writer) {
	if w.enc != nil {
		w.Finish()
	}
	w.bb.Buf = nil
	w.stack = w.stack[:0]
	w.err = nil
	writerPool.Put(w)
}

var fileBytesPool = &sync.Pool{
	New: func() any {
		b := make([]byte, 0, 65536)
		return &b
	},
}
