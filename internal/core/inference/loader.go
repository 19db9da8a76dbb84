package inference

import (
	"log/slog"
	"sync"
	"time"
)

// Loader loads the classifier exactly once. Every caller, including
// concurrent first callers, sees the same instance and the same error.
type Loader struct {
	once       sync.Once
	load       func() (Network, string, error)
	classifier *Classifier
	err        error
}

func NewLoader(load func() (Network, string, error)) *Loader {
	return &Loader{load: load}
}

// NewArtifactLoader loads the artifact in dir with the registered network
// loaders, taking the output activation from its manifest.
func NewArtifactLoader(dir string) *Loader {
	return NewLoader(func() (Network, string, error) {
		manifest, err := LoadManifest(dir)
		if err != nil {
			return nil, "", err
		}
		net, err := Load(dir, NewNetworkLoaders())
		if err != nil {
			return nil, "", err
		}
		return net, manifest.OutputActivation, nil
	})
}

func (l *Loader) Get() (*Classifier, error) {
	l.once.Do(func() {
		start := time.Now()
		net, activation, err := l.load()
		if err != nil {
			slog.Error("error loading network", "error", err)
			l.err = err
			return
		}
		l.classifier = NewClassifier(net, activation)
		slog.Info("network ready", "classes", net.Classes(), "duration", time.Since(start))
	})
	return l.classifier, l.err
}
