package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/observability/metrics"
	"survey-offers/internal/repository"
	"survey-offers/internal/resilience/circuitbreaker"
)

const birthdayLayout = "2006-01-02"

type ProfileRepo struct {
	db *circuitbreaker.DBCircuitBreaker
}

// NewProfileRepo wraps db in the profile-store circuit breaker.
func NewProfileRepo(db *sql.DB) repository.ProfileRepository {
	return &ProfileRepo{db: circuitbreaker.NewDBCircuitBreaker(db)}
}

// NewProfileRepoWithBreaker is used when the breaker is shared with readiness checks.
func NewProfileRepoWithBreaker(db *circuitbreaker.DBCircuitBreaker) repository.ProfileRepository {
	return &ProfileRepo{db: db}
}

func (repo *ProfileRepo) Get(ctx context.Context, userID string) (*entity.DemographicProfile, error) {
	const query = `
SELECT user_id, age, birthday, gender, country_code, zip_code, preferred_survey_length, interests
FROM user_profiles
WHERE user_id = $1
LIMIT 1`
	start := time.Now()
	defer func() { metrics.RecordDBQuery("profile_get", time.Since(start)) }()

	var (
		p             entity.DemographicProfile
		age           sql.NullInt64
		birthday      sql.NullTime
		gender        sql.NullString
		country       sql.NullString
		zip           sql.NullString
		length        sql.NullString
		interestsJSON []byte
	)
	err := repo.db.QueryRowScan(ctx,
		[]interface{}{&p.UserID, &age, &birthday, &gender, &country, &zip, &length, &interestsJSON},
		query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	if birthday.Valid {
		p.Birthday = birthday.Time.Format(birthdayLayout)
	}
	p.Gender = gender.String
	p.CountryCode = country.String
	p.ZipCode = zip.String
	p.PreferredSurveyLength = entity.SurveyLength(length.String)

	if len(interestsJSON) > 0 {
		if err := json.Unmarshal(interestsJSON, &p.Interests); err != nil {
			return nil, fmt.Errorf("Get: unmarshal interests: %w", err)
		}
	}
	return &p, nil
}

func (repo *ProfileRepo) Upsert(ctx context.Context, p *entity.DemographicProfile) error {
	if p == nil || p.UserID == "" {
		return &entity.ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if err := p.Validate(); err != nil {
		return err
	}
	const query = `
INSERT INTO user_profiles
    (user_id, age, birthday, gender, country_code, zip_code, preferred_survey_length, interests, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (user_id) DO UPDATE SET
    age = EXCLUDED.age,
    birthday = EXCLUDED.birthday,
    gender = EXCLUDED.gender,
    country_code = EXCLUDED.country_code,
    zip_code = EXCLUDED.zip_code,
    preferred_survey_length = EXCLUDED.preferred_survey_length,
    interests = EXCLUDED.interests,
    updated_at = NOW()`
	start := time.Now()
	defer func() { metrics.RecordDBQuery("profile_upsert", time.Since(start)) }()

	var age sql.NullInt64
	if p.Age != nil {
		age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
	}
	var birthday sql.NullTime
	if p.Birthday != "" {
		t, err := time.Parse(birthdayLayout, p.Birthday)
		if err != nil {
			return &entity.ValidationError{Field: "birthday", Message: "birthday must be formatted as YYYY-MM-DD"}
		}
		birthday = sql.NullTime{Time: t, Valid: true}
	}
	interests, err := json.Marshal(nonNil(p.Interests))
	if err != nil {
		return fmt.Errorf("Upsert: marshal interests: %w", err)
	}

	if _, err := repo.db.ExecContext(ctx, query,
		p.UserID, age, birthday, nullString(p.Gender), nullString(p.Country()),
		nullString(p.ZipCode), nullString(string(p.PreferredSurveyLength)), interests,
	); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *ProfileRepo) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM user_profiles WHERE user_id = $1`
	res, err := repo.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Delete: user %s: %w", userID, entity.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
