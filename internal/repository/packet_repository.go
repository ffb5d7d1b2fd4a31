package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voeventdb/internal/models"
	"voeventdb/internal/query"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("packet not found")
	ErrDuplicateIvorn = errors.New("ivorn already archived")
)

type PacketRepository interface {
	IvornPresent(ctx context.Context, ivorn string) (bool, error)
	IvornPrefixPresent(ctx context.Context, prefix string) (bool, error)
	Create(ctx context.Context, packet *models.Packet) error
	CreateBatch(ctx context.Context, packets []*models.Packet) error
	FetchPayload(ctx context.Context, ivorn string) ([]byte, error)
	GetWithChildren(ctx context.Context, ivorn string) (*models.Packet, error)
	StreamPayloads(ctx context.Context, window AuthoredWindow, batchSize int, fn func(ivorn string, xml []byte) error) error
	Stats(ctx context.Context) (*TableCounts, error)
}

// AuthoredWindow bounds packets by author_datetime: Start inclusive, End
// exclusive. A nil bound is open; packets with no author_datetime only match
// the fully open window.
type AuthoredWindow struct {
	Start *time.Time
	End   *time.Time
}

type TableCounts struct {
	Packets int64 `json:"voevent"`
	Cites   int64 `json:"cite"`
	Coords  int64 `json:"coord"`
}

type packetRepository struct {
	db *gorm.DB
}

func NewPacketRepository(db *gorm.DB) PacketRepository {
	return &packetRepository{db: db}
}

func (r *packetRepository) IvornPresent(ctx context.Context, ivorn string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Packet{}).
		Where("ivorn = ?", ivorn).
		Limit(1).
		Count(&n).
		Error
	return n > 0, err
}

func (r *packetRepository) IvornPrefixPresent(ctx context.Context, prefix string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Packet{}).
		Where(`ivorn LIKE ? ESCAPE '\'`, query.EscapeLike(prefix)+"%").
		Limit(1).
		Count(&n).
		Error
	return n > 0, err
}

// Create stores a packet with its cites and coords in one transaction.
func (r *packetRepository) Create(ctx context.Context, packet *models.Packet) error {
	err := r.db.WithContext(ctx).Create(packet).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateIvorn, packet.Ivorn)
	}
	return err
}

// CreateBatch stores packets and their children in a single transaction.
func (r *packetRepository) CreateBatch(ctx context.Context, packets []*models.Packet) error {
	if len(packets) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(packets).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicateIvorn, err)
	}
	return err
}

func (r *packetRepository) FetchPayload(ctx context.Context, ivorn string) ([]byte, error) {
	var packet models.Packet
	err := r.db.WithContext(ctx).
		Select("id", "xml").
		Where("ivorn = ?", ivorn).
		Take(&packet).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return packet.XML, nil
}

// GetWithChildren loads a packet, minus its payload, with cites and coords.
func (r *packetRepository) GetWithChildren(ctx context.Context, ivorn string) (*models.Packet, error) {
	var packet models.Packet
	err := r.db.WithContext(ctx).
		Omit("xml").
		Preload("Cites", func(db *gorm.DB) *gorm.DB { return db.Order("cite.id") }).
		Preload("Coords", func(db *gorm.DB) *gorm.DB { return db.Order("coord.id") }).
		Where("ivorn = ?", ivorn).
		Take(&packet).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &packet, nil
}

// StreamPayloads hands every packet in the window to fn in id order, reading
// batchSize rows at a time.
func (r *packetRepository) StreamPayloads(ctx context.Context, window AuthoredWindow, batchSize int, fn func(ivorn string, xml []byte) error) error {
	q := r.db.WithContext(ctx).Model(&models.Packet{}).Select("id", "ivorn", "xml")
	if window.Start != nil {
		q = q.Where("author_datetime >= ?", *window.Start)
	}
	if window.End != nil {
		q = q.Where("author_datetime < ?", *window.End)
	}

	var batch []models.Packet
	res := q.FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		for _, p := range batch {
			if err := fn(p.Ivorn, p.XML); err != nil {
				return err
			}
		}
		return nil
	})
	return res.Error
}

func (r *packetRepository) Stats(ctx context.Context) (*TableCounts, error) {
	db := r.db.WithContext(ctx)
	counts := &TableCounts{}
	if err := db.Model(&models.Packet{}).Count(&counts.Packets).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Cite{}).Count(&counts.Cites).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Coord{}).Count(&counts.Coords).Error; err != nil {
		return nil, err
	}
	return counts, nil
}
