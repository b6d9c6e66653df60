package companion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vtuber/internal/config"
	"vtuber/internal/events"
	"vtuber/internal/llm"
	"vtuber/internal/logging"
	"vtuber/internal/memory"
	"vtuber/internal/persona"
	"vtuber/internal/privacy"
	"vtuber/internal/resilience"
	"vtuber/internal/tts"
)

// Session owns every component built from a Config.
type Session struct {
	Config    *config.Config
	Bus       *events.Bus
	Errors    *resilience.Handler
	Memory    *memory.Store
	Personas  *persona.Engine
	LLM       *llm.Client
	Companion *Companion

	ID string

	watcher *persona.Watcher
	redis   *redis.Client
	audit   *logging.AuditLogger
}

// Open builds and wires the components described by cfg, activates the
// default persona and, when configured, starts the persona watcher. Call
// Companion.Start to restore memory and Close when done.
func Open(ctx context.Context, cfg *config.Config) (_ *Session, err error) {
	timer := logging.StartTimer(logging.CategoryBoot, "companion session open")
	defer timer.Stop()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, err := cfg.GetRetryPolicy()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:     uuid.NewString(),
		Config: cfg,
		Bus:    events.NewBus(cfg.Events.MaxHistory),
		Errors: resilience.NewHandler(resilience.WithPolicy(policy)),
	}
	defer func() {
		if err != nil {
			logging.BootError("session open failed: %v", err)
			s.Close()
		}
	}()

	if cfg.Logging.AuditFile != "" {
		if s.audit, err = logging.OpenAudit(cfg.Logging.AuditFile, s.ID, !cfg.Logging.AuditContent); err != nil {
			return nil, err
		}
		s.attachAudit()
	}

	if s.Memory, err = s.openMemory(ctx); err != nil {
		return nil, err
	}
	if s.Personas, err = s.openPersonas(); err != nil {
		return nil, err
	}

	settings := cfg.LLMSettings()
	backend, err := llm.NewBackend(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("llm backend: %w", err)
	}
	s.LLM = llm.NewClient(backend, settings, s.Errors, s.Bus)

	var speaker tts.Speaker
	if cfg.TTS.Enabled {
		speaker = tts.CommandSpeaker{
			Binary:  cfg.TTS.Command,
			Args:    cfg.TTS.Args,
			Timeout: cfg.GetTTSTimeout(),
		}
	}

	s.Companion, err = New(Deps{
		Bus:      s.Bus,
		Errors:   s.Errors,
		Memory:   s.Memory,
		Personas: s.Personas,
		LLM:      s.LLM,
		Speaker:  speaker,
	})
	if err != nil {
		return nil, err
	}

	// Activate after New so the client picks up persona_loaded.
	if name := cfg.Persona.Default; name != "" && !s.Personas.Activate(ctx, name) {
		logging.BootWarn("default persona %q not found", name)
	}

	if cfg.Persona.Watch && cfg.Persona.Directory != "" {
		w, err := persona.NewWatcher(cfg.Persona.Directory, s.Personas, s.Bus, cfg.GetPersonaDebounce())
		if err != nil {
			return nil, fmt.Errorf("persona watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return nil, fmt.Errorf("persona watcher: %w", err)
		}
		s.watcher = w
	}
	return s, nil
}

func (s *Session) openMemory(ctx context.Context) (*memory.Store, error) {
	mc := s.Config.Memory
	var backend memory.Backend
	switch mc.Backend {
	case config.BackendRedis:
		s.redis = redis.NewClient(&redis.Options{
			Addr:     mc.Redis.Addr,
			Password: mc.Redis.Password,
			DB:       mc.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", mc.Redis.Addr, err)
		}
		backend = memory.NewRedisBackend(s.redis, mc.Redis.Key, s.Config.GetRedisTTL())
	default:
		fb, err := memory.NewFileBackend(mc.StoragePath, mc.Filename)
		if err != nil {
			return nil, err
		}
		backend = fb
	}

	opts := []memory.Option{memory.WithBackend(backend)}
	if mc.Encryption.Enabled {
		cipher, err := s.openCipher()
		if err != nil {
			return nil, err
		}
		opts = append(opts, memory.WithCipher(cipher))
	}
	logging.Boot("memory backend: %s (encrypted=%v)", backend, mc.Encryption.Enabled)
	return memory.NewStore(s.Config.StoreConfig(), s.Errors, opts...), nil
}

// openCipher prefers an inline key. A relative key file lives next to the
// file snapshot.
func (s *Session) openCipher() (privacy.Cipher, error) {
	enc := s.Config.Memory.Encryption
	if enc.Key != "" {
		return privacy.NewSecretBoxFromBase64(enc.Key)
	}
	path := enc.KeyFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Config.Memory.StoragePath, path)
	}
	return privacy.LoadOrCreateKeyFile(path)
}

func (s *Session) openPersonas() (*persona.Engine, error) {
	engine := persona.NewEngine(s.Bus)
	dir := s.Config.Persona.Directory
	if dir != "" {
		if _, err := persona.EnsureDefaults(dir); err != nil {
			return nil, fmt.Errorf("persona defaults: %w", err)
		}
		n, err := engine.LoadProfilesFrom(persona.DirSource{Dir: dir})
		if err != nil {
			return nil, fmt.Errorf("loading personas: %w", err)
		}
		if n > 0 {
			return engine, nil
		}
		logging.BootWarn("no valid personas in %s, using built-in profiles", dir)
	}
	for _, p := range persona.DefaultProfiles() {
		if err := engine.Add(p); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// attachAudit records every published event in the audit trail.
func (s *Session) attachAudit() {
	audit := s.audit
	for _, kind := range events.AllKinds() {
		s.Bus.Subscribe(kind, func(ev events.Event) error {
			audit.Log(logging.AuditEvent{
				Timestamp: ev.Timestamp.UnixMilli(),
				Kind:      string(ev.Kind),
				Source:    ev.Source,
				EventID:   ev.ID,
				Fields:    ev.Payload,
			})
			return nil
		})
	}
}

// Close stops the watcher and releases the redis connection and audit file.
// It does not persist memory; call Companion.Shutdown first.
func (s *Session) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	return errors.Join(errs...)
}
