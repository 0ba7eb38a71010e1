package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"recordkeeper-auth/internal/config"
	"recordkeeper-auth/internal/util"
)

// PreparedStatements holds the statements the repositories execute.
type PreparedStatements struct {
	CreateIdentity        *gocql.Query
	CreateEmailToIdentity *gocql.Query
	GetIdentityByEmail    *gocql.Query
	GetIdentityByID       *gocql.Query
	UpdatePassword        *gocql.Query
	SetResetToken         *gocql.Query
	ClearResetToken       *gocql.Query
	GetIdentityByReset    *gocql.Query
	UpdateLastLogin       *gocql.Query

	CreateSession           *gocql.Query
	CreateSessionByIdentity *gocql.Query
	GetSessionByToken       *gocql.Query
	DeactivateSession       *gocql.Query
	GetSessionsByIdentity   *gocql.Query
	DeactivateByIdentity    *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateIdentity = s.Session.Query(`
        INSERT INTO identities (
            identity_bucket, identity_id, username, email, password_hash,
            public_key, role, reset_token_hash, reset_token_expiry,
            created_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToIdentity = s.Session.Query(`
        INSERT INTO email_to_identity (email, identity_bucket, identity_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetIdentityByEmail = s.Session.Query(`
        SELECT identity_bucket, identity_id FROM email_to_identity WHERE email = ?`)

	prepared.GetIdentityByID = s.Session.Query(`
        SELECT identity_bucket, identity_id, username, email, password_hash,
            public_key, role, reset_token_hash, reset_token_expiry,
            created_at, last_login
        FROM identities WHERE identity_bucket = ? AND identity_id = ?`)

	prepared.UpdatePassword = s.Session.Query(`
        UPDATE identities SET password_hash = ?
        WHERE identity_bucket = ? AND identity_id = ?`)

	prepared.SetResetToken = s.Session.Query(`
        UPDATE identities SET reset_token_hash = ?, reset_token_expiry = ?
        WHERE identity_bucket = ? AND identity_id = ?`)

	prepared.ClearResetToken = s.Session.Query(`
        UPDATE identities SET reset_token_hash = null, reset_token_expiry = null
        WHERE identity_bucket = ? AND identity_id = ?`)

	prepared.GetIdentityByReset = s.Session.Query(`
        SELECT identity_bucket, identity_id FROM reset_token_to_identity WHERE token_hash = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE identities SET last_login = ?
        WHERE identity_bucket = ? AND identity_id = ?`)

	prepared.CreateSession = s.Session.Query(`
        INSERT INTO sessions (
            token, identity_id, login_time, expires_at, is_active,
            ip, city, country, user_agent, browser, os, is_mobile
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateSessionByIdentity = s.Session.Query(`
        INSERT INTO sessions_by_identity (identity_id, login_time, token, is_active)
        VALUES (?, ?, ?, ?)`)

	prepared.GetSessionByToken = s.Session.Query(`
        SELECT token, identity_id, login_time, expires_at, is_active,
            ip, city, country, user_agent, browser, os, is_mobile
        FROM sessions WHERE token = ?`)

	prepared.DeactivateSession = s.Session.Query(`
        UPDATE sessions SET is_active = false WHERE token = ? IF is_active = true`)

	prepared.GetSessionsByIdentity = s.Session.Query(`
        SELECT login_time, token, is_active FROM sessions_by_identity WHERE identity_id = ?`)

	prepared.DeactivateByIdentity = s.Session.Query(`
        UPDATE sessions_by_identity SET is_active = false
        WHERE identity_id = ? AND login_time = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
