package storage

import (
	"io"
	"math"
)

// Progress reports how many bytes of an upload body have been sent.
type Progress struct {
	Total    int64
	Uploaded int64
}

// Percent is uploaded/total as a rounded percentage in [0, 100].
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(p.Uploaded) * 100 / float64(p.Total)))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Done reports whether the whole body has been sent.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Uploaded >= p.Total
}

// ProgressFunc receives upload progress. It is called from the goroutine
// writing the request body.
type ProgressFunc func(Progress)

type progressReader struct {
	r        io.Reader
	total    int64
	uploaded int64
	fn       ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.uploaded += int64(n)
		if pr.fn != nil {
			pr.fn(Progress{Total: pr.total, Uploaded: pr.uploaded})
		}
	}
	return n, err
}
