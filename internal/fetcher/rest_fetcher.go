package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/go-resty/resty/v2"
)

// RestClient polls a single source hospital through its REST web service
// instead of a direct database connection.  It serves both the observation
// fetcher and the person reader contracts.
type RestClient struct {
	httpClient *resty.Client
}

type RestClientConfig struct {
	BaseUrl  string
	Username string
	Password string
	Timeout  time.Duration
}

func NewRestClient(cfg *RestClientConfig) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.BaseUrl).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}

	return &RestClient{httpClient: client}
}

type restObservation struct {
	ObsID          int64    `json:"obs_id"`
	PersonID       int64    `json:"person_id"`
	ConceptLabel   string   `json:"concept"`
	CodedValue     string   `json:"value_coded"`
	TextValue      string   `json:"value_text"`
	NumericValue   *float64 `json:"value_numeric"`
	ObsDatetime    string   `json:"obs_datetime"`
	Comment        string   `json:"comment"`
	CreatorID      int64    `json:"creator_id"`
	CreatorName    string   `json:"creator_name"`
	CreatorLicense string   `json:"creator_license"`
	LocationID     int64    `json:"location_id"`
	LocationName   string   `json:"location_name"`
}

type restPerson struct {
	PersonID   int64  `json:"person_id"`
	NationalID string `json:"national_id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birthdate"`
	Address    string `json:"address"`
}

func (rc *RestClient) FetchBatch(ctx context.Context, afterMarker int64, limit int) ([]domain.RawObservation, error) {

	var payload []restObservation

	resp, err := rc.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"since": strconv.FormatInt(afterMarker, 10),
			"limit": strconv.Itoa(limit),
		}).
		SetResult(&payload).
		Get("/observations")
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("observation fetch failed: %s", resp.Status())
	}

	batch := make([]domain.RawObservation, 0, len(payload))
	for _, o := range payload {
		observedAt, err := time.Parse(time.RFC3339, o.ObsDatetime)
		if err != nil {
			logger.LogError("Unable to parse observation timestamp.  Skipping observation.", err)
			continue
		}

		batch = append(batch, domain.RawObservation{
			SourceObsID:    o.ObsID,
			SourcePersonID: o.PersonID,
			ConceptLabel:   o.ConceptLabel,
			CodedValue:     o.CodedValue,
			TextValue:      o.TextValue,
			NumericValue:   o.NumericValue,
			ObservedAt:     observedAt,
			Comment:        o.Comment,
			CreatorID:      o.CreatorID,
			CreatorName:    o.CreatorName,
			CreatorLicense: o.CreatorLicense,
			LocationID:     o.LocationID,
			LocationName:   o.LocationName,
		})
	}

	return batch, nil
}

func (rc *RestClient) FindPerson(ctx context.Context, sourcePersonID int64) (*domain.SourcePerson, error) {

	var payload restPerson

	resp, err := rc.httpClient.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(fmt.Sprintf("/persons/%d", sourcePersonID))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrPersonNotFound
	}

	if resp.IsError() {
		return nil, fmt.Errorf("person lookup failed: %s", resp.Status())
	}

	person := domain.SourcePerson{
		SourcePersonID: payload.PersonID,
		NationalID:     payload.NationalID,
		GivenName:      payload.GivenName,
		FamilyName:     payload.FamilyName,
		Gender:         payload.Gender,
		Address:        payload.Address,
	}

	if payload.BirthDate != "" {
		if birthDate, err := time.Parse("2006-01-02", payload.BirthDate); err == nil {
			person.BirthDate = &birthDate
		}
	}

	return &person, nil
}
