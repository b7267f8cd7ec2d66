package policy

// Sink collects effects during one policy evaluation. Effects consumed
// between Begin and Commit become visible together; Rollback drops them so
// a failed rule emits nothing.
type Sink interface {
	// Begin marks the start of an evaluation.
	Begin()

	// Consume buffers one emitted effect.
	Consume(effect Effect)

	// Rollback discards effects buffered since Begin.
	Rollback()

	// Commit finalizes effects buffered since Begin.
	Commit()
}

// VecSink is the standard Sink: it buffers effects in order and exposes the
// committed ones.
type VecSink struct {
	committed []Effect
	staged    []Effect
}

// NewVecSink creates an empty sink.
func NewVecSink() *VecSink {
	return &VecSink{}
}

// Begin implements Sink.
func (s *VecSink) Begin() {
	s.staged = s.staged[:0]
}

// Consume implements Sink.
func (s *VecSink) Consume(effect Effect) {
	s.staged = append(s.staged, effect)
}

// Rollback implements Sink.
func (s *VecSink) Rollback() {
	s.staged = s.staged[:0]
}

// Commit implements Sink.
func (s *VecSink) Commit() {
	s.committed = append(s.committed, s.staged...)
	s.staged = s.staged[:0]
}

// Effects returns the committed effects in emission order.
func (s *VecSink) Effects() []Effect {
	return s.committed
}
