// Package store persists room affiliations in badger.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

// persistedMember is the stored shape of a domain.Member.
//
// Key: a/{room}/{bare jid}
type persistedMember struct {
	Room        string `json:"room"`
	JID         string `json:"jid"`
	Affiliation string `json:"affiliation"`
	Nickname    string `json:"nickname,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}

// BadgerStore implements core.AffiliationStore.
type BadgerStore struct {
	db *badger.DB
}

// Open opens the store at path; an empty path keeps everything in memory.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open affiliation store %q: %w", path, err)
	}
	log.Info().Str("module", "adapters.store").Str("path", path).Bool("in_memory", path == "").Msg("affiliation store opened")
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func roomPrefix(room domain.RoomName) []byte {
	return []byte("a/" + string(room) + "/")
}

func memberKey(room domain.RoomName, bare jid.JID) []byte {
	return append(roomPrefix(room), bare.Bare().String()...)
}

func (s *BadgerStore) Save(m domain.Member) error {
	val, err := json.Marshal(persistedMember{
		Room:        string(m.Room),
		JID:         m.JID.Bare().String(),
		Affiliation: m.Affiliation.String(),
		Nickname:    m.Nickname,
		UpdatedAt:   m.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey(m.Room, m.JID), val)
	})
}

func (s *BadgerStore) Delete(room domain.RoomName, bare jid.JID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(memberKey(room, bare))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Load returns every record of the room. Corrupted records are skipped.
func (s *BadgerStore) Load(room domain.RoomName) ([]domain.Member, error) {
	var out []domain.Member
	prefix := roomPrefix(room)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				m, err := fromPersisted(val)
				if err != nil {
					log.Warn().Str("module", "adapters.store").Str("key", string(item.Key())).Err(err).Msg("skipping corrupted record")
					return nil
				}
				out = append(out, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load affiliations of %s: %w", room, err)
	}
	return out, nil
}

func fromPersisted(val []byte) (domain.Member, error) {
	var p persistedMember
	if err := json.Unmarshal(val, &p); err != nil {
		return domain.Member{}, err
	}
	j, err := jid.Parse(p.JID)
	if err != nil {
		return domain.Member{}, err
	}
	aff, err := domain.ParseAffiliation(p.Affiliation)
	if err != nil {
		return domain.Member{}, err
	}
	return domain.Member{
		Room:        domain.RoomName(p.Room),
		JID:         j,
		Affiliation: aff,
		Nickname:    p.Nickname,
		UpdatedAt:   time.Unix(0, p.UpdatedAt).UTC(),
	}, nil
}
