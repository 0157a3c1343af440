package instance

import "github.com/angelmondragon/beatstore-backend/pkg/env"

// GetID names the running process in logs: the dyno on Heroku, the pod
// hostname elsewhere, "local" otherwise.
func GetID() string {
	if id := env.Get("DYNO", ""); id != "" {
		return id
	}
	return env.Get("HOSTNAME", "local")
}
