package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"trading-journal/internal/records"
)

// Collection names shared with the web client.
const (
	CollectionUsers = "users"
)

// Store implements records.Store on Cloud Firestore. Each record kind is a
// top-level collection whose documents carry a userId field.
type Store struct {
	client *firestore.Client

	deposits    *fsCollection[*records.Deposit]
	withdrawals *fsCollection[*records.Withdrawal]
	trades      *fsCollection[*records.TradePnLEntry]
	wallets     *fsCollection[*records.Wallet]
	rules       *fsCollection[*records.TradeRule]
	users       *userStore
}

var _ records.Store = (*Store)(nil)

// NewStore wraps an initialized client.
func NewStore(client *firestore.Client) *Store {
	return &Store{
		client:      client,
		deposits:    newCollection(client, records.KindDeposit, encodeDeposit, decodeDeposit),
		withdrawals: newCollection(client, records.KindWithdrawal, encodeWithdrawal, decodeWithdrawal),
		trades:      newCollection(client, records.KindTradePnL, encodeTrade, decodeTrade),
		wallets:     newCollection(client, records.KindWallet, encodeWallet, decodeWallet),
		rules:       newCollection(client, records.KindTradeRule, encodeRule, decodeRule),
		users:       &userStore{client: client},
	}
}

func (s *Store) Deposits() records.Collection[*records.Deposit]       { return s.deposits }
func (s *Store) Withdrawals() records.Collection[*records.Withdrawal] { return s.withdrawals }
func (s *Store) TradePnL() records.Collection[*records.TradePnLEntry] { return s.trades }
func (s *Store) Wallets() records.Collection[*records.Wallet]         { return s.wallets }
func (s *Store) TradeRules() records.Collection[*records.TradeRule]   { return s.rules }
func (s *Store) Users() records.UserStore                             { return s.users }

// HealthCheck reads a single document id that never exists; any answer from
// the server other than an error means the backend is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.Collection(CollectionUsers).Doc("_health").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore health check failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type fsCollection[T records.Record] struct {
	client *firestore.Client
	name   string
	encode func(T) map[string]interface{}
	decode func(id string, data map[string]interface{}) T
}

func newCollection[T records.Record](
	client *firestore.Client,
	kind records.Kind,
	encode func(T) map[string]interface{},
	decode func(string, map[string]interface{}) T,
) *fsCollection[T] {
	return &fsCollection[T]{client: client, name: string(kind), encode: encode, decode: decode}
}

func (c *fsCollection[T]) ref(id string) *firestore.DocumentRef {
	return c.client.Collection(c.name).Doc(id)
}

// List queries by owner and sorts in memory, so no composite index is needed.
func (c *fsCollection[T]) List(ctx context.Context, userID string) ([]T, error) {
	docs, err := c.client.Collection(c.name).Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.name, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		out = append(out, c.decode(doc.Ref.ID, doc.Data()))
	}
	records.SortNewestFirst(out)
	return out, nil
}

func (c *fsCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := c.ref(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return zero, records.ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to get %s/%s: %w", c.name, id, err)
	}
	return c.decode(doc.Ref.ID, doc.Data()), nil
}

func (c *fsCollection[T]) Create(ctx context.Context, rec T) error {
	_, err := c.ref(rec.RecordID()).Create(ctx, c.encode(rec))
	if status.Code(err) == codes.AlreadyExists {
		return records.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.name, err)
	}
	return nil
}

// Update replaces the whole document. It fails with ErrNotFound instead of
// creating a missing document.
func (c *fsCollection[T]) Update(ctx context.Context, rec T) error {
	ref := c.ref(rec.RecordID())
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return records.ErrNotFound
			}
			return err
		}
		return tx.Set(ref, c.encode(rec))
	})
	if errors.Is(err, records.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", c.name, err)
	}
	return nil
}

func (c *fsCollection[T]) Delete(ctx context.Context, id string) error {
	_, err := c.ref(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return records.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// userStore keeps accounts in the users collection keyed by user id. Email
// uniqueness is enforced inside a transaction.
type userStore struct {
	client *firestore.Client
}

func (u *userStore) CreateUser(ctx context.Context, user *records.User) error {
	users := u.client.Collection(CollectionUsers)
	email := records.NormalizeEmail(user.Email)

	err := u.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(users.Where("email", "==", email).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return records.ErrConflict
		}
		return tx.Create(users.Doc(user.ID), encodeUser(user))
	})
	if errors.Is(err, records.ErrConflict) || status.Code(err) == codes.AlreadyExists {
		return records.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (u *userStore) GetUserByEmail(ctx context.Context, email string) (*records.User, error) {
	docs, err := u.client.Collection(CollectionUsers).
		Where("email", "==", records.NormalizeEmail(email)).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(docs) == 0 {
		return nil, records.ErrNotFound
	}
	return decodeUser(docs[0].Ref.ID, docs[0].Data()), nil
}

func (u *userStore) GetUserByID(ctx context.Context, id string) (*records.User, error) {
	doc, err := u.client.Collection(CollectionUsers).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return decodeUser(doc.Ref.ID, doc.Data()), nil
}

func (u *userStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := u.client.Collection(CollectionUsers).Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastLoginAt", Value: at},
	})
	if status.Code(err) == codes.NotFound {
		return records.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
