package account

import (
	"context"

	"github.com/zeusync/zeusrpc/internal/core/rpc"
	"github.com/zeusync/zeusrpc/pkg/encoding"
)

var codec encoding.Codec = encoding.JSONCodec{}

// Stub calls a remote Service through an invoker.
type Stub struct {
	invoker rpc.Invoker
}

func NewStub(invoker rpc.Invoker) Service {
	return &Stub{invoker: invoker}
}

func (s *Stub) CreateSession(ctx context.Context, req *CreateSessionReq) (*Session, error) {
	var session Session
	if err := s.call(ctx, CodeCreateSession, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Stub) GetSession(ctx context.Context, req *GetSessionReq) (*Session, error) {
	var session Session
	if err := s.call(ctx, CodeGetSession, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Stub) call(ctx context.Context, code int32, req, resp any) error {
	payload, err := codec.Marshal(req)
	if err != nil {
		return err
	}
	out, err := s.invoker.Call(ctx, code, payload)
	if err != nil {
		return err
	}
	return codec.Unmarshal(out, resp)
}

// Skeleton maps method codes to handlers that decode the request, call impl
// and encode the result.
func Skeleton(impl Service) map[int32]rpc.HandlerFunc {
	return map[int32]rpc.HandlerFunc{
		CodeCreateSession: handle(impl.CreateSession),
		CodeGetSession:    handle(impl.GetSession),
	}
}

func handle[Req, Resp any](method func(context.Context, *Req) (*Resp, error)) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req := new(Req)
		if err := codec.Unmarshal(payload, req); err != nil {
			return nil, err
		}
		resp, err := method(ctx, req)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(resp)
	}
}

// Register exposes impl through rt.
func Register(rt *rpc.Runtime, impl Service) error {
	return rpc.Register(rt, Interface, impl, Skeleton)
}

// Bind returns the Service published under name, or the local one when
// registered in rt.
func Bind(rt *rpc.Runtime, name string) Service {
	return rpc.Bind(rt, rpc.NewServiceKey(Interface, name), NewStub)
}
