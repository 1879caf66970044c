package contract

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Call is one contract invocation. Ledger selects the ledger instance; an
// empty Ledger means the server's default instance.
type Call struct {
	Ledger   Address
	Contract string
	Method   string
	Params   Params
}

// Event is a named record emitted by a write.
type Event struct {
	Name string
	Args map[string]any
}

// Receipt lists the events emitted by a write, in emission order.
type Receipt struct {
	Events []Event
}

// Find returns the first event called name.
func (r *Receipt) Find(name string) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, e := range r.Events {
		if e.Name == name {
			return e, true
		}
	}
	return Event{}, false
}

// ID returns the "id" argument carried by ledger events.
func (e Event) ID() (int64, error) {
	return toInt64(e.Args["id"])
}

// Str returns a string argument, or "" if absent.
func (e Event) Str(key string) string {
	s, _ := e.Args[key].(string)
	return s
}

func (c Call) ToStruct() (*structpb.Struct, error) {
	params, err := structpb.NewList(normalize(c.Params).([]any))
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ledger":   structpb.NewStringValue(string(c.Ledger)),
		"contract": structpb.NewStringValue(c.Contract),
		"method":   structpb.NewStringValue(c.Method),
		"params":   structpb.NewListValue(params),
	}}, nil
}

func CallFromStruct(s *structpb.Struct) (Call, error) {
	if s == nil {
		return Call{}, fmt.Errorf("empty call")
	}
	f := s.GetFields()
	c := Call{
		Ledger:   Address(f["ledger"].GetStringValue()),
		Contract: f["contract"].GetStringValue(),
		Method:   f["method"].GetStringValue(),
	}
	if c.Contract == "" || c.Method == "" {
		return Call{}, fmt.Errorf("call must name a contract and a method")
	}
	if l := f["params"].GetListValue(); l != nil {
		c.Params = l.AsSlice()
	}
	return c, nil
}

func (e Event) ToStruct() (*structpb.Struct, error) {
	args := map[string]any{}
	for k, v := range e.Args {
		args[k] = normalize(v)
	}
	as, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Name, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"name": structpb.NewStringValue(e.Name),
		"args": structpb.NewStructValue(as),
	}}, nil
}

func EventFromStruct(s *structpb.Struct) Event {
	f := s.GetFields()
	e := Event{Name: f["name"].GetStringValue(), Args: map[string]any{}}
	if a := f["args"].GetStructValue(); a != nil {
		e.Args = a.AsMap()
	}
	return e
}

func (r *Receipt) ToStruct() (*structpb.Struct, error) {
	events := make([]*structpb.Value, 0, len(r.Events))
	for _, e := range r.Events {
		es, err := e.ToStruct()
		if err != nil {
			return nil, err
		}
		events = append(events, structpb.NewStructValue(es))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"events": structpb.NewListValue(&structpb.ListValue{Values: events}),
	}}, nil
}

func ReceiptFromStruct(s *structpb.Struct) *Receipt {
	r := &Receipt{}
	for _, v := range s.GetFields()["events"].GetListValue().GetValues() {
		r.Events = append(r.Events, EventFromStruct(v.GetStructValue()))
	}
	return r
}

// ToValue converts a method result into a protobuf value.
func ToValue(v any) (*structpb.Value, error) {
	return structpb.NewValue(normalize(v))
}

// normalize rewrites the domain types structpb does not know about
// (Address, Role, typed slices) into plain JSON-like values.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Address:
		return string(x)
	case Role:
		return string(x)
	case []Address:
		out := make([]any, len(x))
		for i, a := range x {
			out[i] = string(a)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case Params:
		return normalize([]any(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case [][]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
