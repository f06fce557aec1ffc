package store

import (
	"database/sql"
	"strconv"

	"github.com/pavelanni/trivia/internal/model"
)

// SetMetadata upserts a key-value pair in the survey_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO survey_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM survey_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetCorpusInfo records which corpus the server was started with.
func (s *Store) SetCorpusInfo(info model.CorpusInfo) error {
	pairs := []struct{ k, v string }{
		{"corpus_path", info.Path},
		{"corpus_sha256", info.SHA256},
		{"corpus_count", strconv.Itoa(info.Count)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetCorpusInfo reads the last recorded corpus. Zero value if none was recorded.
func (s *Store) GetCorpusInfo() (model.CorpusInfo, error) {
	var info model.CorpusInfo
	var err error

	if info.Path, err = s.GetMetadata("corpus_path"); err != nil {
		return info, err
	}
	if info.SHA256, err = s.GetMetadata("corpus_sha256"); err != nil {
		return info, err
	}
	n, err := s.GetMetadata("corpus_count")
	if err != nil {
		return info, err
	}
	if n != "" {
		info.Count, err = strconv.Atoi(n)
		if err != nil {
			return info, err
		}
	}
	return info, nil
}
