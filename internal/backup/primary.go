package backup

import "codeberg.org/mutker/healthd/internal/sysfs"

// Primary is the live location of a counter, usually a writable sysfs
// attribute exposed by the fuel gauge.
type Primary interface {
	Read() (Value, error)
	Write(Value) error
}

// SysfsPrimary reads and writes a counter through a sysfs attribute.
type SysfsPrimary struct {
	reader *sysfs.Reader
	path   string
}

func NewSysfsPrimary(reader *sysfs.Reader, path string) *SysfsPrimary {
	return &SysfsPrimary{reader: reader, path: path}
}

func (p *SysfsPrimary) Read() (Value, error) {
	bins, err := p.reader.ReadInts(p.path)
	if err != nil {
		return nil, err
	}

	return Value(bins), nil
}

func (p *SysfsPrimary) Write(v Value) error {
	return p.reader.Write(p.path, v.String())
}
