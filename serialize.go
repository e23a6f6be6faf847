package edict

// EncodeTo writes d as one MessagePack value: a map of its children for map
// nodes, an empty map for empty nodes, and the stored value for value nodes.
func (d *Dictionary) EncodeTo(w *Writer) {
	if d.value != nil {
		d.value.write(w)
		return
	}
	w.StartMap(len(d.children))
	for key, ch := range d.children {
		w.WriteString(key)
		ch.EncodeTo(w)
	}
	w.FinishMap()
}

// Serialize encodes d as a self-contained message, reusing the storage of
// buf. The length of the result is the exact size of the message.
func (d *Dictionary) Serialize(buf []byte) ([]byte, error) {
	w := writerPool.Get().(*Writer)
	defer releaseWriter(w)
	w.Reset(buf)
	d.EncodeTo(w)
	size, err := w.Finish()
	if err != nil {
		return nil, err
	}
	return w.Bytes()[:size], nil
}

// Update parses data and applies it with UpdateNode. Malformed data is
// reported as EventParseError and ignored.
func (d *Dictionary) Update(data []byte) error {
	n, err := Parse(data)
	if err != nil {
		d.environment().report(Event{Kind: EventParseError, Err: err})
		return nil
	}
	return d.UpdateNode(n)
}

// Extend parses data and applies it with ExtendNode. Malformed data is
// reported as EventParseError and ignored.
func (d *Dictionary) Extend(data []byte) error {
	n, err := Parse(data)
	if err != nil {
		d.environment().report(Event{Kind: EventParseError, Err: err})
		return nil
	}
	return d.ExtendNode(n)
}
