package migrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
)

type participant struct {
	address contract.Address
	role    contract.Role
	md      contract.Metadata
}

type message struct {
	id        int64
	from      contract.Address
	createdAt int64
	parts     []participant
}

type instance struct {
	version contract.SchemaVersion
	msgs    map[int64]*message
	events  map[string][]int64
}

// fakeLedger serves several ledger instances. Calls and results go through
// their protobuf form, as they do over gRPC.
type fakeLedger struct {
	mu        sync.Mutex
	instances map[contract.Address]*instance
	sends     int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{instances: map[contract.Address]*instance{}}
}

func (f *fakeLedger) deploy(addr contract.Address, v contract.SchemaVersion) {
	f.instances[addr] = &instance{version: v, msgs: map[int64]*message{}, events: map[string][]int64{}}
}

// seed stores a message sent normally: the sender's copy is read, the
// others are not.
func (f *fakeLedger) seed(l contract.Address, id int64, from contract.Address, to, cc []contract.Address) *message {
	m := &message{id: id, from: from, createdAt: 1700000000 + id}
	m.parts = append(m.parts, participant{from, contract.RoleFrom, contract.Metadata{
		StorageID: fmt.Sprintf("s-%d-from", id), WrappedKey: []byte{byte(id), 0}, Read: true,
	}})
	for i, a := range to {
		m.parts = append(m.parts, participant{a, contract.RoleTo, contract.Metadata{
			StorageID: fmt.Sprintf("s-%d-to-%d", id, i), WrappedKey: []byte{byte(id), 1, byte(i)}, Important: i == 0,
		}})
	}
	for i, a := range cc {
		m.parts = append(m.parts, participant{a, contract.RoleCc, contract.Metadata{
			StorageID: fmt.Sprintf("s-%d-cc-%d", id, i), WrappedKey: []byte{byte(id), 2, byte(i)}, Deleted: true,
		}})
	}
	inst := f.instances[l]
	inst.msgs[id] = m
	inst.events[contract.EventEmailCreated] = append(inst.events[contract.EventEmailCreated], id)
	return m
}

func (m *message) email() contract.Email {
	e := contract.Email{ID: m.id, From: m.from, To: []contract.Address{}, Cc: []contract.Address{}, CreatedAt: m.createdAt}
	for _, p := range m.parts {
		switch p.role {
		case contract.RoleTo:
			e.To = append(e.To, p.address)
		case contract.RoleCc:
			e.Cc = append(e.Cc, p.address)
		}
	}
	return e
}

func overWire(c contract.Call) (contract.Call, error) {
	s, err := c.ToStruct()
	if err != nil {
		return contract.Call{}, err
	}
	return contract.CallFromStruct(s)
}

func (f *fakeLedger) instance(l contract.Address) (*instance, error) {
	inst, ok := f.instances[l]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return inst, nil
}

func (f *fakeLedger) Call(_ context.Context, c contract.Call) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := overWire(c)
	if err != nil {
		return nil, err
	}
	inst, err := f.instance(c.Ledger)
	if err != nil {
		return nil, err
	}

	var res any
	switch c.Method {
	case contract.MethodSchemaVersion:
		res = int64(inst.version)
	case contract.MethodGetEmailByID:
		id, err := c.Params.Int64(0)
		if err != nil {
			return nil, err
		}
		m, ok := inst.msgs[id]
		if !ok {
			return nil, common.ErrorNotFound
		}
		if res, err = contract.EncodeEmail(inst.version, m.email()); err != nil {
			return nil, err
		}
	case contract.MethodEmailUserMetadata:
		id, err := c.Params.Int64(0)
		if err != nil {
			return nil, err
		}
		addr, err := c.Params.Address(1)
		if err != nil {
			return nil, err
		}
		role, err := c.Params.Str(2)
		if err != nil {
			return nil, err
		}
		m, ok := inst.msgs[id]
		if !ok {
			return nil, common.ErrorNotFound
		}
		for _, p := range m.parts {
			if p.address == addr && string(p.role) == role {
				res = contract.EncodeMetadata(inst.version, p.md)
			}
		}
		if res == nil {
			return nil, common.ErrorNotFound
		}
	default:
		return nil, fmt.Errorf("unexpected call %s", c.Method)
	}

	v, err := contract.ToValue(res)
	if err != nil {
		return nil, err
	}
	return v.AsInterface(), nil
}

func (f *fakeLedger) Send(_ context.Context, c contract.Call) (*contract.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := overWire(c)
	if err != nil {
		return nil, err
	}
	if c.Method != contract.MethodAddEmailFromMigration {
		return nil, fmt.Errorf("unexpected send %s", c.Method)
	}
	inst, err := f.instance(c.Ledger)
	if err != nil {
		return nil, err
	}
	rec, err := contract.DecodeMigration(inst.version, c.Params)
	if err != nil {
		return nil, err
	}
	if _, ok := inst.msgs[rec.ID]; ok {
		return nil, common.ErrAlreadyExists
	}
	f.sends++

	m := &message{id: rec.ID, from: rec.From, createdAt: rec.CreatedAt}
	roles := rec.Roles()
	for i, u := range rec.Users {
		m.parts = append(m.parts, participant{u, roles[i], rec.Metadata[i]})
	}
	inst.msgs[rec.ID] = m
	inst.events[contract.EventEmailMigrated] = append(inst.events[contract.EventEmailMigrated], rec.ID)

	return &contract.Receipt{Events: []contract.Event{{
		Name: contract.EventEmailMigrated,
		Args: map[string]any{"id": rec.ID, "address": string(rec.From)},
	}}}, nil
}

func (f *fakeLedger) Events(_ context.Context, l contract.Address, name string) ([]contract.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inst, err := f.instance(l)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Event, 0, len(inst.events[name]))
	for _, id := range inst.events[name] {
		e := contract.Event{Name: name, Args: map[string]any{"id": id}}
		s, err := e.ToStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, contract.EventFromStruct(s))
	}
	return out, nil
}
