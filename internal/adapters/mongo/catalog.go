package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
)

// CatalogRepository reads the showtime catalog maintained by the catalog
// subsystem. The booking core never writes here.
type CatalogRepository struct {
	showtimes *mongo.Collection
	users     *mongo.Collection
	logger    observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		showtimes: db.Collection("showtimes"),
		users:     db.Collection("users"),
		logger:    logger,
	}
}

type showtimeDoc struct {
	ID          int64     `bson:"_id"`
	MovieTitle  string    `bson:"movie_title"`
	ScreenName  string    `bson:"screen_name"`
	TotalRows   int       `bson:"total_rows"`
	SeatsPerRow int       `bson:"seats_per_row"`
	Price       float64   `bson:"price"`
	StartTime   time.Time `bson:"start_time"`
}

func (c *CatalogRepository) GetShowtime(ctx context.Context, id int64) (*domain.Showtime, error) {
	var doc showtimeDoc
	err := c.showtimes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "showtime %d", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("catalog showtime lookup failed")
		return nil, err
	}
	return &domain.Showtime{
		ID:          doc.ID,
		MovieTitle:  doc.MovieTitle,
		ScreenName:  doc.ScreenName,
		TotalRows:   doc.TotalRows,
		SeatsPerRow: doc.SeatsPerRow,
		Price:       doc.Price,
		StartTime:   doc.StartTime.UTC(),
	}, nil
}

// CreateShowtime seeds a showtime document. The catalog subsystem owns
// these writes in production; integration tests use it to stage fixtures.
func (c *CatalogRepository) CreateShowtime(ctx context.Context, s domain.Showtime) error {
	doc := showtimeDoc{
		ID:          s.ID,
		MovieTitle:  s.MovieTitle,
		ScreenName:  s.ScreenName,
		TotalRows:   s.TotalRows,
		SeatsPerRow: s.SeatsPerRow,
		Price:       s.Price,
		StartTime:   s.StartTime.UTC(),
	}
	_, err := c.showtimes.InsertOne(ctx, doc)
	return err
}

// CreateUser seeds a user document.
func (c *CatalogRepository) CreateUser(ctx context.Context, id uuid.UUID) error {
	_, err := c.users.InsertOne(ctx, bson.M{"_id": id.String()})
	return err
}

func (c *CatalogRepository) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	err := c.users.FindOne(ctx, bson.M{"_id": id.String()}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		c.logger.WithError(err).Error("catalog user lookup failed")
		return false, err
	}
	return true, nil
}
