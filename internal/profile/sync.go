package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"jobportal/internal/model"
)

type Gateway interface {
	CreateSubResource(ctx context.Context, parent, parentID, sub string, payload any, out any) error
	DeleteSubResource(ctx context.Context, parent, parentID, sub, key string) error
	CreateProfile(ctx context.Context, parent string, body any, out any) error
	UpdateProfile(ctx context.Context, parent, id string, body any, out any) error
}

type Options struct {
	Store  Store
	NewKey func() string
	Logger *slog.Logger
}

// Synchronizer is the only writer of a Draft. While the draft has no id,
// sub-resource edits stay local. Once it has one, edits of persisted entries
// go to the backend first and are applied locally only on success.
type Synchronizer struct {
	gateway Gateway
	store   Store
	newKey  func() string
	logger  *slog.Logger

	mu    sync.Mutex
	draft Draft
}

func NewSynchronizer(d Draft, gw Gateway, opts Options) *Synchronizer {
	newKey := opts.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synchronizer{
		gateway: gw,
		store:   opts.Store,
		newKey:  newKey,
		logger:  logger,
		draft:   d.Clone(),
	}
}

func (s *Synchronizer) Snapshot() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Add validates payload and appends it to the kind's collection, returning
// the updated collection.
func (s *Synchronizer) Add(ctx context.Context, kind SubKind, payload Payload) ([]SubResource, error) {
	op := "add " + string(kind)
	canonical, err := NormalizePayload(kind, payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.draft.Clone()
	if !next.Saved() {
		next.Collections[kind] = append(next.Collections[kind], SubResource{
			LocalKey: s.newKey(),
			Payload:  canonical,
		})
		s.logger.Debug("sub-resource added locally", "kind", kind)
		if err := s.persistLocked(next); err != nil {
			return nil, err
		}
		s.draft = next
		return cloneCollection(next.Collections[kind]), nil
	}

	var raw json.RawMessage
	if err := s.gateway.CreateSubResource(ctx, next.Kind.Path(), *next.ID, string(kind), canonical, &raw); err != nil {
		return nil, err
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, &model.Error{Kind: model.KindServer, Op: op, Message: "decode created entry", Err: err}
	}
	entry.LocalKey = s.newKey()
	next.Collections[kind] = append(next.Collections[kind], entry)
	s.logger.Debug("sub-resource created remotely", "kind", kind, "remote_id", *entry.RemoteID)

	// the backend already has it; keep memory in step even if the file write fails
	s.draft = next
	if err := s.persistLocked(next); err != nil {
		return cloneCollection(next.Collections[kind]), err
	}
	return cloneCollection(next.Collections[kind]), nil
}

// Remove deletes the entry with localKey. Entries without a remote id never
// reached the backend and are dropped locally; persisted entries are deleted
// remotely first.
func (s *Synchronizer) Remove(ctx context.Context, kind SubKind, localKey string) ([]SubResource, error) {
	op := "remove " + string(kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.draft.find(kind, strings.TrimSpace(localKey))
	if !ok {
		return nil, model.Errorf(model.KindNotFound, op, "no %s entry with key %q", kind, localKey)
	}
	next := s.draft.Clone()
	entry := next.Collections[kind][idx]
	next.Collections[kind] = append(next.Collections[kind][:idx:idx], next.Collections[kind][idx+1:]...)

	if !entry.Persisted() {
		s.logger.Debug("sub-resource removed locally", "kind", kind)
		if err := s.persistLocked(next); err != nil {
			return nil, err
		}
		s.draft = next
		return cloneCollection(next.Collections[kind]), nil
	}
	if !next.Saved() {
		return nil, model.Errorf(model.KindValidation, op, "entry %q has a remote id but the profile is not saved", localKey)
	}

	if err := s.gateway.DeleteSubResource(ctx, next.Kind.Path(), *next.ID, string(kind), *entry.RemoteID); err != nil {
		return nil, err
	}
	s.logger.Debug("sub-resource deleted remotely", "kind", kind, "remote_id", *entry.RemoteID)

	s.draft = next
	if err := s.persistLocked(next); err != nil {
		return cloneCollection(next.Collections[kind]), err
	}
	return cloneCollection(next.Collections[kind]), nil
}

// SetField edits a scalar profile field locally. An empty value removes it.
// Fields reach the backend with the next Save.
func (s *Synchronizer) SetField(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Errorf(model.KindValidation, "set field", "field name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.draft.Clone()
	if v := strings.TrimSpace(value); v == "" {
		delete(next.Fields, name)
	} else {
		next.Fields[name] = v
	}
	if err := s.persistLocked(next); err != nil {
		return err
	}
	s.draft = next
	return nil
}

// Save submits the whole draft and replaces it with the backend's canonical
// copy. The first successful save assigns the draft its id; later saves must
// return the same id.
func (s *Synchronizer) Save(ctx context.Context) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := "save " + string(s.draft.Kind)
	body := encodeDocument(s.draft)

	var raw json.RawMessage
	var err error
	if s.draft.Saved() {
		err = s.gateway.UpdateProfile(ctx, s.draft.Kind.Path(), *s.draft.ID, body, &raw)
	} else {
		err = s.gateway.CreateProfile(ctx, s.draft.Kind.Path(), body, &raw)
	}
	if err != nil {
		return Draft{}, err
	}

	next, err := decodeDocument(s.draft, raw, s.newKey)
	if err != nil {
		return Draft{}, &model.Error{Kind: model.KindServer, Op: op, Message: "decode profile", Err: err}
	}
	if s.draft.Saved() && *next.ID != *s.draft.ID {
		return Draft{}, model.Errorf(model.KindServer, op, "backend changed profile id from %s to %s", *s.draft.ID, *next.ID)
	}
	s.logger.Debug("profile saved", "kind", next.Kind, "id", *next.ID, "first_save", !s.draft.Saved())

	s.draft = next
	if err := s.persistLocked(next); err != nil {
		return next.Clone(), err
	}
	return next.Clone(), nil
}

func (s *Synchronizer) persistLocked(d Draft) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(d); err != nil {
		return fmt.Errorf("persist draft: %w", err)
	}
	return nil
}

func cloneCollection(in []SubResource) []SubResource {
	out := make([]SubResource, 0, len(in))
	for _, s := range in {
		out = append(out, s.Clone())
	}
	return out
}

// encodeDocument renders the draft in the backend's profile shape. Persisted
// entries carry their id so the backend can keep them.
func encodeDocument(d Draft) map[string]any {
	doc := map[string]any{"fields": d.Fields}
	for _, kind := range subKinds {
		entries := make([]map[string]string, 0, len(d.Collections[kind]))
		for _, e := range d.Collections[kind] {
			m := map[string]string(e.Payload.Clone())
			if e.RemoteID != nil {
				m["id"] = *e.RemoteID
			}
			entries = append(entries, m)
		}
		doc[string(kind)] = entries
	}
	return doc
}

func decodeDocument(prev Draft, raw json.RawMessage, newKey func() string) (Draft, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Draft{}, err
	}

	var id model.FlexibleID
	if err := json.Unmarshal(doc["id"], &id); err != nil || id == "" {
		return Draft{}, fmt.Errorf("profile response has no id")
	}

	next := NewDraft(prev.Kind)
	idStr := string(id)
	next.ID = &idStr

	if fieldsRaw, ok := doc["fields"]; ok {
		var fields map[string]any
		if err := json.Unmarshal(fieldsRaw, &fields); err != nil {
			return Draft{}, fmt.Errorf("fields: %w", err)
		}
		for k, v := range fields {
			if sv, ok := stringify(v); ok {
				next.Fields[k] = sv
			}
		}
	}

	// keep local keys stable for entries the backend already knew
	keyByRemote := map[string]string{}
	for _, kind := range subKinds {
		for _, e := range prev.Collections[kind] {
			if e.RemoteID != nil {
				keyByRemote[string(kind)+"/"+*e.RemoteID] = e.LocalKey
			}
		}
	}

	for _, kind := range subKinds {
		listRaw, ok := doc[string(kind)]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(listRaw, &items); err != nil {
			return Draft{}, fmt.Errorf("%s: %w", kind, err)
		}
		for _, item := range items {
			entry, err := decodeEntry(item)
			if err != nil {
				return Draft{}, fmt.Errorf("%s: %w", kind, err)
			}
			if key, ok := keyByRemote[string(kind)+"/"+*entry.RemoteID]; ok {
				entry.LocalKey = key
			} else {
				entry.LocalKey = newKey()
			}
			next.Collections[kind] = append(next.Collections[kind], entry)
		}
	}
	return next, nil
}

// decodeEntry reads a backend entry of the form {id, ...payload}.
func decodeEntry(raw json.RawMessage) (SubResource, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SubResource{}, err
	}
	var id model.FlexibleID
	if err := json.Unmarshal(fields["id"], &id); err != nil || id == "" {
		return SubResource{}, fmt.Errorf("entry has no id")
	}

	payload := Payload{}
	for k, rawValue := range fields {
		if k == "id" {
			continue
		}
		var v any
		if err := json.Unmarshal(rawValue, &v); err != nil {
			return SubResource{}, fmt.Errorf("field %s: %w", k, err)
		}
		if sv, ok := stringify(v); ok {
			payload[k] = sv
		}
	}

	remote := string(id)
	return SubResource{RemoteID: &remote, Payload: payload}, nil
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
