package cluster

//go:generate mockgen -source=facilities.go -destination=facilities_mock_test.go -package=cluster

// Transport delivers datagrams between agents. ReadFrom must return
// transport.ErrClosed once Close has been called.
type Transport interface {
	ReadFrom(buf []byte) (n int, from string, err error)
	WriteTo(b []byte, addr string) error
	LocalAddr() string
	Close() error
}
