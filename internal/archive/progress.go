package archive

import "io"

// progressReader reports cumulative bytes read every interval bytes and once when 5% is crossed.
type progressReader struct {
	reader     io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read         int64
	sinceLastLog int64
}

func newProgressReader(r io.Reader, total, interval int64, cb func(read, total int64)) *progressReader {
	return &progressReader{reader: r, total: total, interval: interval, onProgress: cb}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n <= 0 {
		return n, err
	}

	before := pr.read
	pr.read += int64(n)
	pr.sinceLastLog += int64(n)

	crossedFirstStep := pr.total > 0 && pr.read*100/pr.total >= 5 && before*100/pr.total < 5

	if pr.sinceLastLog >= pr.interval || crossedFirstStep {
		pr.onProgress(pr.read, pr.total)
		pr.sinceLastLog = 0
	}

	return n, err
}
