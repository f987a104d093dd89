package documents

import (
	"bytes"
	"encoding/xml"
)

// xmlWriter streams prefixed elements through an xml.Encoder. The first
// error sticks and is returned by finish.
type xmlWriter struct {
	buf    *bytes.Buffer
	enc    *xml.Encoder
	prefix string
	err    error
}

func newXMLWriter(prefix string) *xmlWriter {
	buf := &bytes.Buffer{}
	buf.WriteString(xml.Header)
	return &xmlWriter{buf: buf, enc: xml.NewEncoder(buf), prefix: prefix}
}

func (w *xmlWriter) name(local string) xml.Name {
	return xml.Name{Local: w.prefix + ":" + local}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (w *xmlWriter) start(local string, attrs ...xml.Attr) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(xml.StartElement{Name: w.name(local), Attr: attrs})
}

func (w *xmlWriter) end(local string) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(xml.EndElement{Name: w.name(local)})
}

func (w *xmlWriter) element(local, value string, attrs ...xml.Attr) {
	w.start(local, attrs...)
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.CharData(value))
	}
	w.end(local)
}

// optional writes the element only when value is set.
func (w *xmlWriter) optional(local, value string, attrs ...xml.Attr) {
	if value == "" {
		return
	}
	w.element(local, value, attrs...)
}

func (w *xmlWriter) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if err := w.enc.Flush(); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}
