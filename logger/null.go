package logger

// Null discards everything. It is the engine default so hosts opt in to
// logging explicitly.
type Null struct{}

func NewNull() *Null { return &Null{} }

func (Null) Debug(string, ...any) {}
func (Null) Info(string, ...any)  {}
func (Null) Error(string, ...any) {}
