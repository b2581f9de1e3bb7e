package gormstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quotecollector/pkg/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (c *Client) GetObject(ctx context.Context, id string) (*storage.Object, error) {
	var rec EntryRecord
	err := c.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get object %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	return toObject(rec)
}

func (c *Client) CreateObject(ctx context.Context, obj storage.Object) error {
	rec, err := ToEntryRecord(obj)
	if err != nil {
		return err
	}

	tx := c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return fmt.Errorf("create object %s: %w", obj.ID, tx.Error)
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf("create object %s: %w", obj.ID, storage.ErrExists)
	}
	return nil
}

func (c *Client) GetState(ctx context.Context, id string) (*storage.State, error) {
	var rec StateRecord
	err := c.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get state %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", id, err)
	}

	val, err := decodeVal(rec.Val)
	if err != nil {
		return nil, fmt.Errorf("decode state %s: %w", id, err)
	}
	return &storage.State{Val: val, Ack: rec.Ack, Ts: rec.Ts, LC: rec.LC}, nil
}

func (c *Client) SetState(ctx context.Context, id string, val any, ack bool) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", id, err)
	}

	now := time.Now().UTC()
	next := StateRecord{ID: id, Val: string(raw), Ack: ack, Ts: now, LC: now}

	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var obj EntryRecord
		if err := tx.Where("id = ?", id).First(&obj).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		if storage.Kind(obj.Kind) != storage.KindLeaf {
			return storage.ErrNotWritable
		}

		var prev StateRecord
		err := tx.Where("id = ?", id).First(&prev).Error
		switch {
		case err == nil && prev.Val == next.Val:
			next.LC = prev.LC
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"val", "ack", "ts", "lc", "updated_at"}),
		}).Create(&next).Error
	})
	if err != nil {
		return fmt.Errorf("set state %s: %w", id, err)
	}

	c.notifier.Publish(storage.StateChange{
		ID:    id,
		State: storage.State{Val: val, Ack: ack, Ts: next.Ts, LC: next.LC},
	})
	return nil
}

func (c *Client) SubscribeStates(_ context.Context, pattern string) (storage.Subscription, error) {
	return c.notifier.Subscribe(pattern)
}

// ToEntryRecord converts an Object into its table row.
func ToEntryRecord(obj storage.Object) (*EntryRecord, error) {
	native := obj.Native
	if native == nil {
		native = map[string]any{}
	}
	raw, err := json.Marshal(native)
	if err != nil {
		return nil, fmt.Errorf("encode native %s: %w", obj.ID, err)
	}

	return &EntryRecord{
		ID:        obj.ID,
		Kind:      string(obj.Kind),
		Name:      obj.Common.Name,
		Role:      obj.Common.Role,
		ValueType: obj.Common.Type,
		Readable:  obj.Common.Read,
		Writable:  obj.Common.Write,
		Native:    string(raw),
	}, nil
}

func toObject(rec EntryRecord) (*storage.Object, error) {
	native := map[string]any{}
	if rec.Native != "" {
		if err := json.Unmarshal([]byte(rec.Native), &native); err != nil {
			return nil, fmt.Errorf("decode native %s: %w", rec.ID, err)
		}
	}
	return &storage.Object{
		ID:   rec.ID,
		Kind: storage.Kind(rec.Kind),
		Common: storage.Common{
			Name:  rec.Name,
			Role:  rec.Role,
			Type:  rec.ValueType,
			Read:  rec.Readable,
			Write: rec.Writable,
		},
		Native: native,
	}, nil
}

// decodeVal keeps numbers as json.Number so integers round-trip exactly.
func decodeVal(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
