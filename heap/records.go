package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// initBaseRTD allocates the descriptor that describes every RTD, itself
// included.
func (p *PCB) initBaseRTD() error {
	name, err := p.MakeString("base-rtd")
	if err != nil {
		return err
	}
	defer p.protect(&name)()
	rtd, err := p.Alloc(value.RTDSize, value.VectorTag)
	if err != nil {
		return err
	}
	p.as.store(rtd.Base(), rtd)
	p.as.store(fieldAddr(rtd, value.OffRTDName), name)
	p.as.store(fieldAddr(rtd, value.OffRTDLength), value.MustFixnum(value.RTDFieldCount))
	p.as.store(fieldAddr(rtd, value.OffRTDFields), value.Null)
	p.as.store(fieldAddr(rtd, value.OffRTDPrinter), value.False)
	p.as.store(fieldAddr(rtd, value.OffRTDSymbol), value.False)
	p.baseRTD = rtd
	return nil
}

// BaseRTD returns the root record-type descriptor.
func (p *PCB) BaseRTD() value.Word {
	return p.baseRTD
}

// MakeRTD builds a record-type descriptor with the given field names.
func (p *PCB) MakeRTD(name string, fields ...string) (value.Word, error) {
	nameStr, err := p.MakeString(name)
	if err != nil {
		return 0, err
	}
	defer p.protect(&nameStr)()
	names, err := p.ListFromStrings(fields)
	if err != nil {
		return 0, err
	}
	defer p.protect(&names)()
	rtd, err := p.Alloc(value.RTDSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(rtd.Base(), p.baseRTD)
	p.as.store(fieldAddr(rtd, value.OffRTDName), nameStr)
	p.as.store(fieldAddr(rtd, value.OffRTDLength), value.MustFixnum(int64(len(fields))))
	p.as.store(fieldAddr(rtd, value.OffRTDFields), names)
	p.as.store(fieldAddr(rtd, value.OffRTDPrinter), value.False)
	p.as.store(fieldAddr(rtd, value.OffRTDSymbol), value.False)
	return rtd, nil
}

// IsRTD reports whether w is a record-type descriptor.
func (p *PCB) IsRTD(w value.Word) bool {
	return p.KindOf(w) == value.KindRecord && p.Ref(w, value.OffRecordRTD) == p.baseRTD
}

func (p *PCB) mustRTD(op string, w value.Word) {
	if !p.IsRTD(w) {
		panic(&KindError{Op: op, Want: "record-type descriptor", Got: p.KindOf(w).String()})
	}
}

// RTDName returns the name of a descriptor.
func (p *PCB) RTDName(rtd value.Word) string {
	p.mustRTD("rtd-name", rtd)
	return p.GoString(p.Ref(rtd, value.OffRTDName))
}

// RTDLength returns the field count of a descriptor.
func (p *PCB) RTDLength(rtd value.Word) int {
	p.mustRTD("rtd-length", rtd)
	return p.rtdLength(rtd)
}

// RTDFieldNames returns the field names of a descriptor.
func (p *PCB) RTDFieldNames(rtd value.Word) []string {
	p.mustRTD("rtd-field-names", rtd)
	var out []string
	for _, s := range p.ListToSlice(p.Ref(rtd, value.OffRTDFields)) {
		out = append(out, p.GoString(s))
	}
	return out
}

// MakeRecord builds an instance of rtd. fields must match its field count.
func (p *PCB) MakeRecord(rtd value.Word, fields ...value.Word) (value.Word, error) {
	p.mustRTD("make-record", rtd)
	if n := p.rtdLength(rtd); n != len(fields) {
		return 0, fmt.Errorf("heap: make-record %s: %d fields, want %d", p.RTDName(rtd), len(fields), n)
	}
	fields = append([]value.Word(nil), fields...)
	defer p.protectSlice(fields)()
	defer p.protect(&rtd)()
	r, err := p.Alloc(value.RecordBytes(len(fields)), value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(r.Base(), rtd)
	for i, f := range fields {
		p.as.store(fieldAddr(r, value.OffRecordData+i*value.WordSize), f)
	}
	return r, nil
}

// RecordRTD returns the descriptor of a record.
func (p *PCB) RecordRTD(r value.Word) value.Word {
	p.mustKind("record-rtd", r, value.KindRecord)
	return p.Ref(r, value.OffRecordRTD)
}

// RecordRef returns field i.
func (p *PCB) RecordRef(r value.Word, i int) value.Word {
	checkIndex("record-ref", i, p.rtdLength(p.RecordRTD(r)))
	return p.Ref(r, value.OffRecordData+i*value.WordSize)
}

// RecordSet stores field i through the write barrier.
func (p *PCB) RecordSet(r value.Word, i int, v value.Word) {
	checkIndex("record-set!", i, p.rtdLength(p.RecordRTD(r)))
	p.SetField(r, value.OffRecordData+i*value.WordSize, v)
}

// ---------------------------------------------------------------------------
// Thread-context buckets
// ---------------------------------------------------------------------------

// MakeTCBucket builds a bucket of a guardian/weak table chain.
func (p *PCB) MakeTCBucket(tconc, key, val, next value.Word) (value.Word, error) {
	defer p.protect(&tconc, &key, &val, &next)()
	b, err := p.Alloc(value.TCBucketSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(b.Base(), value.TCBucketTag)
	p.as.store(fieldAddr(b, value.OffTCBucketTConc), tconc)
	p.as.store(fieldAddr(b, value.OffTCBucketKey), key)
	p.as.store(fieldAddr(b, value.OffTCBucketVal), val)
	p.as.store(fieldAddr(b, value.OffTCBucketNext), next)
	return b, nil
}

// TCBucketRef reads a bucket field by its offset (value.OffTCBucket*).
func (p *PCB) TCBucketRef(b value.Word, off int) value.Word {
	p.mustKind("tcbucket-ref", b, value.KindTCBucket)
	return p.Ref(b, off)
}

// TCBucketSet writes a bucket field through the write barrier.
func (p *PCB) TCBucketSet(b value.Word, off int, v value.Word) {
	p.mustKind("tcbucket-set!", b, value.KindTCBucket)
	p.SetField(b, off, v)
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// MakePort builds a port with the given attribute bits. Every field starts
// as #f except the index and buffer size, which start at zero.
func (p *PCB) MakePort(attrs uint64) (value.Word, error) {
	w, err := p.Alloc(value.PortSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.PortHeader(attrs))
	for f := value.PortIndex; f <= value.PortUnused2; f++ {
		v := value.False
		if f == value.PortIndex || f == value.PortBufferSize {
			v = value.MustFixnum(0)
		}
		p.as.store(fieldAddr(w, f.Offset()), v)
	}
	return w, nil
}

// PortAttrs returns the attribute bits of a port.
func (p *PCB) PortAttrs(w value.Word) uint64 {
	p.mustKind("port-attrs", w, value.KindPort)
	return p.as.load(w.Base()).PortAttrs()
}

// PortField reads a port slot.
func (p *PCB) PortField(w value.Word, f value.PortField) value.Word {
	p.mustKind("port-field", w, value.KindPort)
	return p.Ref(w, f.Offset())
}

// SetPortField writes a port slot through the write barrier.
func (p *PCB) SetPortField(w value.Word, f value.PortField, v value.Word) {
	p.mustKind("set-port-field!", w, value.KindPort)
	p.SetField(w, f.Offset(), v)
}
