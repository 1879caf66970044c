package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/client/subscription"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	pb "github.com/dmitrijs2005/sealmail/internal/proto"
)

const testLedger contract.Address = "0x00000000000000000000000000000000000000e1"

type record struct {
	address    contract.Address
	role       contract.Role
	storageID  string
	wrappedKey []byte
	read       bool
	important  bool
	deleted    bool
}

type message struct {
	id        int64
	sender    contract.Address
	createdAt int64
	records   []*record
}

// chain is an in-memory ledger shared by several callers. Every call goes
// through the same struct encoding the gRPC client uses.
type chain struct {
	mu      sync.Mutex
	version contract.SchemaVersion
	now     int64
	msgs    map[int64]*message
	lastID  int64
	reject  map[contract.Address]error
	sends   int
}

func newChain(v contract.SchemaVersion) *chain {
	return &chain{
		version: v,
		now:     1700000000,
		msgs:    map[int64]*message{},
		reject:  map[contract.Address]error{},
	}
}

func (c *chain) as(caller contract.Address) *view {
	return &view{chain: c, caller: caller}
}

type view struct {
	chain  *chain
	caller contract.Address
}

func (v *view) Ledger() contract.Address { return testLedger }

func overWire(c contract.Call) (contract.Call, error) {
	s, err := c.ToStruct()
	if err != nil {
		return contract.Call{}, err
	}
	return contract.CallFromStruct(s)
}

func (v *view) Call(ctx context.Context, c contract.Call) (any, error) {
	c, err := overWire(c)
	if err != nil {
		return nil, err
	}
	res, err := v.chain.read(v.caller, c)
	if err != nil {
		return nil, pb.FromStatus(pb.ToStatus(err))
	}
	val, err := contract.ToValue(res)
	if err != nil {
		return nil, err
	}
	return val.AsInterface(), nil
}

func (v *view) Send(ctx context.Context, c contract.Call) (*contract.Receipt, error) {
	c, err := overWire(c)
	if err != nil {
		return nil, err
	}
	r, err := v.chain.write(v.caller, c)
	if err != nil {
		return nil, pb.FromStatus(pb.ToStatus(err))
	}
	s, err := r.ToStruct()
	if err != nil {
		return nil, err
	}
	return contract.ReceiptFromStruct(s), nil
}

func (c *chain) read(caller contract.Address, call contract.Call) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch call.Method {
	case contract.MethodSchemaVersion:
		return int64(c.version), nil
	case contract.MethodGetEmailByID:
		id, err := call.Params.Int64(0)
		if err != nil {
			return nil, err
		}
		m, ok := c.msgs[id]
		if !ok {
			return nil, common.ErrorNotFound
		}
		for _, r := range m.records {
			if r.address == caller {
				return c.encode(m, r)
			}
		}
		return nil, common.ErrorNotFound
	case contract.MethodGetAllByFrom, contract.MethodGetAllByTo, contract.MethodGetAllByCc,
		contract.MethodGetImportant, contract.MethodGetDeleted:
		out := []any{}
		for id := int64(1); id <= c.lastID; id++ {
			m := c.msgs[id]
			for _, r := range m.records {
				if r.address != caller || !inFolder(call.Method, r) {
					continue
				}
				t, err := c.encode(m, r)
				if err != nil {
					return nil, err
				}
				out = append(out, t)
				break
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s", common.ErrInvalidParams, call.Method)
}

func inFolder(method string, r *record) bool {
	switch method {
	case contract.MethodGetAllByFrom:
		return r.role == contract.RoleFrom
	case contract.MethodGetAllByTo:
		return r.role == contract.RoleTo && !r.deleted
	case contract.MethodGetAllByCc:
		return r.role == contract.RoleCc && !r.deleted
	case contract.MethodGetImportant:
		return r.important && !r.deleted
	default:
		return r.deleted
	}
}

func (c *chain) encode(m *message, r *record) ([]any, error) {
	e := contract.Email{
		ID:         m.id,
		From:       m.sender,
		To:         []contract.Address{},
		Cc:         []contract.Address{},
		CreatedAt:  m.createdAt,
		StorageID:  r.storageID,
		WrappedKey: r.wrappedKey,
		Important:  r.important,
		Deleted:    r.deleted,
		Read:       r.read,
	}
	for _, p := range m.records {
		switch p.role {
		case contract.RoleTo:
			e.To = append(e.To, p.address)
		case contract.RoleCc:
			e.Cc = append(e.Cc, p.address)
		}
	}
	return contract.EncodeEmail(c.version, e)
}

func (c *chain) write(caller contract.Address, call contract.Call) (*contract.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch call.Method {
	case contract.MethodSend:
		sid, err := call.Params.Str(0)
		if err != nil {
			return nil, err
		}
		wk, err := call.Params.Bytes(1)
		if err != nil {
			return nil, err
		}
		c.sends++
		c.lastID++
		c.now++
		c.msgs[c.lastID] = &message{
			id:        c.lastID,
			sender:    caller,
			createdAt: c.now,
			records:   []*record{{address: caller, role: contract.RoleFrom, storageID: sid, wrappedKey: wk, read: true}},
		}
		return &contract.Receipt{Events: []contract.Event{{
			Name: contract.EventEmailCreated,
			Args: map[string]any{"id": c.lastID, "address": string(caller)},
		}}}, nil

	case contract.MethodAddRecipient:
		id, err := call.Params.Int64(0)
		if err != nil {
			return nil, err
		}
		addr, err := call.Params.Address(1)
		if err != nil {
			return nil, err
		}
		sid, err := call.Params.Str(2)
		if err != nil {
			return nil, err
		}
		wk, err := call.Params.Bytes(3)
		if err != nil {
			return nil, err
		}
		role, err := call.Params.Str(4)
		if err != nil {
			return nil, err
		}
		if err := c.reject[addr]; err != nil {
			return nil, err
		}
		m, ok := c.msgs[id]
		if !ok {
			return nil, common.ErrorNotFound
		}
		if m.sender != caller {
			return nil, common.ErrForbidden
		}
		for _, r := range m.records {
			if r.address == addr && string(r.role) == role {
				return nil, &common.DuplicateRecipientError{Address: string(addr), Role: role}
			}
		}
		m.records = append(m.records, &record{address: addr, role: contract.Role(role), storageID: sid, wrappedKey: wk})
		return &contract.Receipt{Events: []contract.Event{{
			Name: contract.EventRecipientAdded,
			Args: map[string]any{"id": id, "address": string(addr)},
		}}}, nil

	case contract.MethodMarkAsRead, contract.MethodMarkAsImportant, contract.MethodDeleteMessage:
		id, err := call.Params.Int64(0)
		if err != nil {
			return nil, err
		}
		value, err := call.Params.Bool(1)
		if err != nil {
			return nil, err
		}
		m, ok := c.msgs[id]
		if !ok {
			return nil, common.ErrorNotFound
		}
		n := 0
		for _, r := range m.records {
			if r.address != caller {
				continue
			}
			n++
			switch call.Method {
			case contract.MethodMarkAsRead:
				r.read = value
			case contract.MethodMarkAsImportant:
				r.important = value
			default:
				r.deleted = value
			}
		}
		if n == 0 {
			return nil, common.ErrorNotFound
		}
		return &contract.Receipt{}, nil
	}
	return nil, fmt.Errorf("%w: %s", common.ErrInvalidParams, call.Method)
}

// fakeSubscriber hands out one channel per Subscribe call.
type fakeSubscriber struct {
	ch       chan contract.Event
	topic    string
	ledger   contract.Address
	canceled bool
	err      error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, t subscription.Topic) (<-chan contract.Event, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.topic, f.ledger = t.Event, t.Ledger
	return f.ch, func() { f.canceled = true }, nil
}
