package server

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"jsonrpc-router/message"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

type methodType struct {
	method    reflect.Method
	ParamType reflect.Type // nil when the method takes no params
}

// MethodService exposes the exported methods of a receiver as a Service. Methods are
// picked up when they have one of these shapes:
//
//	func (r *Recv) Name(ctx context.Context, data T, params P) (R, error)
//	func (r *Recv) Name(ctx context.Context, data T) (R, error)
//
// and answer "namespace.Name", or "Name" when the namespace is empty. Params are decoded
// from the request with Request.Deserialize; P may be a pointer.
type MethodService[T any] struct {
	namespace string
	rcvr      reflect.Value
	typ       reflect.Type
	methods   map[string]*methodType
}

// NewMethodService scans rcvr for methods with a suitable signature.
func NewMethodService[T any](namespace string, rcvr any) (*MethodService[T], error) {
	if rcvr == nil {
		return nil, fmt.Errorf("rpc: receiver is nil")
	}
	s := &MethodService[T]{
		namespace: namespace,
		rcvr:      reflect.ValueOf(rcvr),
		typ:       reflect.TypeOf(rcvr),
		methods:   make(map[string]*methodType),
	}
	s.registerMethods(reflect.TypeOf((*T)(nil)).Elem())
	if len(s.methods) == 0 {
		return nil, fmt.Errorf("rpc: type %s has no exported methods of suitable type", s.typ)
	}
	return s, nil
}

func (s *MethodService[T]) registerMethods(dataType reflect.Type) {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 && mt.NumIn() != 4 {
			continue
		}
		if mt.In(1) != contextType || mt.In(2) != dataType {
			continue
		}
		if mt.NumOut() != 2 || mt.Out(1) != errorType {
			continue
		}

		m := &methodType{method: method}
		if mt.NumIn() == 4 {
			m.ParamType = mt.In(3)
		}
		s.methods[method.Name] = m
	}
}

// Methods lists the method names the service answers, sorted.
func (s *MethodService[T]) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, s.qualify(name))
	}
	sort.Strings(names)
	return names
}

func (s *MethodService[T]) qualify(name string) string {
	if s.namespace == "" {
		return name
	}
	return s.namespace + "." + name
}

func (s *MethodService[T]) lookup(method string) (*methodType, bool) {
	if s.namespace != "" {
		prefix := s.namespace + "."
		if !strings.HasPrefix(method, prefix) {
			return nil, false
		}
		method = method[len(prefix):]
	}
	m, ok := s.methods[method]
	return m, ok
}

func (s *MethodService[T]) Handle(ctx context.Context, req *message.Request, data T) (*message.Response, error) {
	m, ok := s.lookup(req.Method)
	if !ok {
		return nil, nil
	}

	args := []reflect.Value{s.rcvr, reflect.ValueOf(&ctx).Elem(), reflect.ValueOf(&data).Elem()}
	if m.ParamType != nil {
		arg, err := decodeParam(req, m.ParamType)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := m.method.Func.Call(args)
	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return message.NewResponse(req, results[0].Interface())
}

// decodeParam allocates a value of type typ and fills it from the request params.
func decodeParam(req *message.Request, typ reflect.Type) (reflect.Value, error) {
	if typ.Kind() == reflect.Pointer {
		argv := reflect.New(typ.Elem())
		if err := req.Deserialize(argv.Interface()); err != nil {
			return reflect.Value{}, err
		}
		return argv, nil
	}
	argv := reflect.New(typ)
	if err := req.Deserialize(argv.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return argv.Elem(), nil
}
