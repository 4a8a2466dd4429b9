package redis

import (
	"encoding/json"

	"cryptotracker/internal/model"
)

func alertJSON(a model.Alert) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
