// Package store records which peers are connected to the relay server.
package store

import (
	"context"
	"time"

	"github.com/rudransh-shrivastava/peerlink/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PeerStore struct {
	DB *gorm.DB
}

func NewPeerStore(db *gorm.DB) *PeerStore {
	return &PeerStore{DB: db}
}

// CreatePeer records a connected peer, replacing a stale row with the same
// id.
func (ps *PeerStore) CreatePeer(ctx context.Context, id, remoteAddr string) error {
	now := time.Now().Unix()
	peer := db.Peer{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		LastSeenAt:  now,
	}
	return ps.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&peer).Error
}

func (ps *PeerStore) DeletePeer(ctx context.Context, id string) error {
	return ps.DB.WithContext(ctx).Where("id = ?", id).Delete(&db.Peer{}).Error
}

func (ps *PeerStore) GetPeer(ctx context.Context, id string) (db.Peer, error) {
	var peer db.Peer
	err := ps.DB.WithContext(ctx).First(&peer, "id = ?", id).Error
	return peer, err
}

func (ps *PeerStore) GetPeers(ctx context.Context) ([]db.Peer, error) {
	var peers []db.Peer
	err := ps.DB.WithContext(ctx).Order("id").Find(&peers).Error
	return peers, err
}

// TouchPeer marks the peer as seen and counts one relayed message.
func (ps *PeerStore) TouchPeer(ctx context.Context, id string) error {
	return ps.DB.WithContext(ctx).Model(&db.Peer{}).Where("id = ?", id).Updates(map[string]any{
		"last_seen_at": time.Now().Unix(),
		"relayed":      gorm.Expr("relayed + ?", 1),
	}).Error
}

func (ps *PeerStore) DropAllPeers(ctx context.Context) error {
	return ps.DB.WithContext(ctx).Where("1 = 1").Delete(&db.Peer{}).Error
}
