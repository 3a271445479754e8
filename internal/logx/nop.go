package logx

// Nop returns a Logger that discards everything. Constructors fall back to it when
// given a nil logger.
func Nop() Logger { return discard{} }

type discard struct{}

var _ Logger = discard{}

func (discard) Debug(string, ...Field) {}
func (discard) Info(string, ...Field)  {}
func (discard) Warn(string, ...Field)  {}
func (discard) Error(string, ...Field) {}
func (d discard) With(...Field) Logger { return d }
func (discard) Sync() error            { return nil }
