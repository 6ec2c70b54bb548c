/*
 *  Copyright 2018 KardiaChain
 *  This file is part of the go-kardia library.
 *
 *  The go-kardia library is free software: you can redistribute it and/or modify
 *  it under the terms of the GNU Lesser General Public License as published by
 *  the Free Software Foundation, either version 3 of the License, or
 *  (at your option) any later version.
 *
 *  The go-kardia library is distributed in the hope that it will be useful,
 *  but WITHOUT ANY WARRANTY; without even the implied warranty of
 *  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 *  GNU Lesser General Public License for more details.
 *
 *  You should have received a copy of the GNU Lesser General Public License
 *  along with the go-kardia library. If not, see <http://www.gnu.org/licenses/>.
 */
// Package storage
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
)

const (
	cGroups    = "Groups"
	cProposals = "Proposals"
	cAudit     = "Audit"
)

// mongoStorage is the shared-deployment backend: several toolkit processes
// pointed at one replica set. Durability and backups are mongo's problem
// here; the record contract is identical to the file backend.
type mongoStorage struct {
	logger *zap.Logger
	clock  utils.Clock
	db     *mongo.Database
}

func newMongoStorage(cfg Config) (*mongoStorage, error) {
	ctx := context.Background()
	mgoOptions := options.Client()
	mgoOptions.ApplyURI(cfg.URI)
	if cfg.MinConn > 0 {
		mgoOptions.SetMinPoolSize(uint64(cfg.MinConn))
	}
	if cfg.MaxConn > 0 {
		mgoOptions.SetMaxPoolSize(uint64(cfg.MaxConn))
	}
	mgoClient, err := mongo.NewClient(mgoOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	if err := mgoClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}

	s := &mongoStorage{
		logger: cfg.Logger,
		clock:  cfg.Clock,
		db:     mgoClient.Database(cfg.DbName),
	}
	_ = s.createIndexes(ctx)
	return s, nil
}

func (s *mongoStorage) createIndexes(ctx context.Context) error {
	type cIndex struct {
		c     string
		model []mongo.IndexModel
	}
	indexes := []cIndex{
		{c: cGroups, model: []mongo.IndexModel{{Keys: bson.M{"id": 1}, Options: options.Index().SetUnique(true).SetSparse(true)}}},
		{c: cProposals, model: []mongo.IndexModel{{Keys: bson.M{"id": 1}, Options: options.Index().SetUnique(true).SetSparse(true)}}},
		{c: cProposals, model: []mongo.IndexModel{{Keys: bson.M{"groupId": 1}, Options: options.Index().SetSparse(true)}}},
		{c: cProposals, model: []mongo.IndexModel{{Keys: bson.M{"status": 1}, Options: options.Index().SetSparse(true)}}},
		{c: cAudit, model: []mongo.IndexModel{{Keys: bson.M{"time": -1}}}},
	}
	for _, idx := range indexes {
		if _, err := s.db.Collection(idx.c).Indexes().CreateMany(ctx, idx.model); err != nil {
			s.logger.Warn("cannot create index", zap.String("collection", idx.c), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *mongoStorage) SaveGroup(ctx context.Context, group *types.Group) error {
	if group.Version == "" {
		group.Version = SchemaVersion
	}
	model := []mongo.WriteModel{
		mongo.NewUpdateOneModel().SetUpsert(true).SetFilter(bson.M{"id": group.ID}).SetUpdate(bson.M{"$set": group}),
	}
	if _, err := s.db.Collection(cGroups).BulkWrite(ctx, model); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *mongoStorage) Group(ctx context.Context, id string) (*types.Group, error) {
	var group types.Group
	err := s.db.Collection(cGroups).FindOne(ctx, bson.M{"id": id}).Decode(&group)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return &group, nil
}

func (s *mongoStorage) Groups(ctx context.Context) ([]*types.Group, error) {
	cursor, err := s.db.Collection(cGroups).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	defer cursor.Close(ctx)
	var out []*types.Group
	for cursor.Next(ctx) {
		var group types.Group
		if err := cursor.Decode(&group); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorageCorrupt, err)
		}
		out = append(out, &group)
	}
	return out, nil
}

func (s *mongoStorage) SaveProposal(ctx context.Context, p *types.Proposal) error {
	if p.Version == "" {
		p.Version = SchemaVersion
	}
	model := []mongo.WriteModel{
		mongo.NewUpdateOneModel().SetUpsert(true).SetFilter(bson.M{"id": p.ID}).SetUpdate(bson.M{"$set": p}),
	}
	if _, err := s.db.Collection(cProposals).BulkWrite(ctx, model); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *mongoStorage) Proposal(ctx context.Context, id string) (*types.Proposal, error) {
	var p types.Proposal
	err := s.db.Collection(cProposals).FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return &p, nil
}

func (s *mongoStorage) ProposalsByGroup(ctx context.Context, groupID string) ([]*types.Proposal, error) {
	return s.findProposals(ctx, bson.M{"groupId": groupID})
}

func (s *mongoStorage) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	return s.findProposals(ctx, bson.M{})
}

func (s *mongoStorage) findProposals(ctx context.Context, filter bson.M) ([]*types.Proposal, error) {
	cursor, err := s.db.Collection(cProposals).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	defer cursor.Close(ctx)
	var out []*types.Proposal
	for cursor.Next(ctx) {
		var p types.Proposal
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorageCorrupt, err)
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *mongoStorage) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry.Version == "" {
		entry.Version = SchemaVersion
	}
	if _, err := s.db.Collection(cAudit).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *mongoStorage) CleanupAudit(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.Collection(cAudit).DeleteMany(ctx, bson.M{"time": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}
	return int(res.DeletedCount), nil
}

func (s *mongoStorage) ExportGroup(ctx context.Context, id string) ([]byte, error) {
	group, err := s.Group(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrGroupNotFound, id)
	}
	proposals, err := s.ProposalsByGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(exportBlob{
		Version:    SchemaVersion,
		ExportedAt: s.clock.Now(),
		Group:      group,
		Proposals:  proposals,
	}, "", "  ")
}

func (s *mongoStorage) ImportGroup(ctx context.Context, blob []byte) (*types.Group, error) {
	var exp exportBlob
	if err := json.Unmarshal(blob, &exp); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageCorrupt, err)
	}
	if exp.Group == nil {
		return nil, fmt.Errorf("%w: export blob without group", types.ErrStorageCorrupt)
	}
	if err := s.SaveGroup(ctx, exp.Group); err != nil {
		return nil, err
	}
	for _, p := range exp.Proposals {
		if err := s.SaveProposal(ctx, p); err != nil {
			return nil, err
		}
	}
	return exp.Group, nil
}
