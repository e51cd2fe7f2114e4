package endpoints

import (
	"github.com/fablekit/fable/internal/api"
	"github.com/fablekit/fable/internal/docstore"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DockerManager *docstore.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DockerManager: cfg.DockerManager},

		// Book endpoints
		&CreateBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},
		&GenerateAudioEndpoint{},

		// Batch endpoints
		&BatchAudioEndpoint{},
		&GetBatchEndpoint{},

		// Voice endpoints
		&ListVoicesEndpoint{},
	}
}

// BookCommands returns endpoints grouped under the "books" subcommand.
func BookCommands() []api.Endpoint {
	return []api.Endpoint{
		&CreateBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},
		&GenerateAudioEndpoint{},
	}
}

// BatchCommands returns endpoints grouped under the "batches" subcommand.
func BatchCommands() []api.Endpoint {
	return []api.Endpoint{
		&BatchAudioEndpoint{},
		&GetBatchEndpoint{},
	}
}
