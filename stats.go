package shuffle

// Stats is a read-only snapshot of what a partition has received.
//
// RecordCount is always reported as zero: the receive path never decodes
// buffers, so it cannot know how many records they carry. Downstream
// consumers must not rely on it until counting moves into the sorting
// engine.
type Stats struct {
	RecordCount int64
	TotalBytes  int64
}
