package state

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"overnight_bot/internal/models"
	"overnight_bot/pkg/logger"
)

const SnapshotVersion = 1

// ErrNoSnapshot — снапшота нет ни в основном файле, ни в бэкапе.
var ErrNoSnapshot = errors.New("no snapshot on disk")

// Snapshot — всё, что нужно для восстановления после рестарта.
type Snapshot struct {
	Version       int              `json:"version"`
	Symbol        string           `json:"symbol"`
	Position      models.Position  `json:"position"`
	Cash          decimal.Decimal  `json:"cash"`
	Risk          models.RiskState `json:"risk"`
	LastProcessed time.Time        `json:"last_processed"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Store пишет снапшот в каталог по схеме: перед записью текущий файл
// копируется в бэкап, новый пишется во временный файл и переименовывается.
// В любой момент падения на диске есть хотя бы одна целая копия.
type Store struct {
	dir  string
	lock *os.File
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) primary() string { return filepath.Join(s.dir, "state.json") }
func (s *Store) backup() string  { return filepath.Join(s.dir, "state_backup.json") }

// Lock берёт эксклюзивную блокировку каталога состояния. Блокировка
// живёт вместе с процессом: после kill -9 её снимет ядро.
func (s *Store) Lock() error {
	f, err := os.OpenFile(filepath.Join(s.dir, "state.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("state dir %s занят другим процессом: %w", s.dir, err)
	}
	s.lock = f
	return nil
}

func (s *Store) Unlock() {
	if s.lock != nil {
		syscall.Flock(int(s.lock.Fd()), syscall.LOCK_UN)
		s.lock.Close()
		s.lock = nil
	}
}

// Save атомарно сохраняет снапшот: copy primary -> backup, write tmp,
// rename tmp -> primary.
func (s *Store) Save(snap Snapshot) error {
	snap.Version = SnapshotVersion
	snap.UpdatedAt = time.Now().UTC()

	data, err := sonic.ConfigDefault.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if _, err := os.Stat(s.primary()); err == nil {
		if err := copyFile(s.primary(), s.backup()); err != nil {
			return fmt.Errorf("backup snapshot: %w", err)
		}
	}

	tmp := s.primary() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.primary()); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load читает снапшот: сперва основной файл, при его порче — бэкап.
// Если обе копии битые, возвращает ошибку (не ErrNoSnapshot): стартовать
// с нуля поверх непонятного состояния нельзя без явного разрешения.
func (s *Store) Load() (Snapshot, error) {
	snap, perr := s.read(s.primary())
	if perr == nil {
		return snap, nil
	}
	if os.IsNotExist(perr) {
		if _, err := os.Stat(s.backup()); os.IsNotExist(err) {
			return Snapshot{}, ErrNoSnapshot
		}
	} else {
		logger.Warn("[STATE] основной снапшот битый: %v, пробуем бэкап", perr)
	}

	snap, berr := s.read(s.backup())
	if berr == nil {
		logger.Warn("[STATE] восстановились из бэкапа %s", s.backup())
		return snap, nil
	}
	return Snapshot{}, fmt.Errorf("обе копии снапшота нечитаемы: primary: %v; backup: %w", perr, berr)
}

// Wipe удаляет обе копии (явный старт с нуля).
func (s *Store) Wipe() error {
	for _, p := range []string{s.primary(), s.backup()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) read(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := snap.validate(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// validate — структурная проверка поверх успешного парсинга JSON.
func (sn Snapshot) validate() error {
	if sn.Version <= 0 || sn.Version > SnapshotVersion {
		return fmt.Errorf("unsupported version %d", sn.Version)
	}
	if sn.Symbol == "" {
		return errors.New("empty symbol")
	}
	switch sn.Position.State {
	case models.StateFlat, models.StateLong:
	default:
		return fmt.Errorf("unknown position state %q", sn.Position.State)
	}
	if sn.Position.State == models.StateLong && !sn.Position.Quantity.IsPositive() {
		return errors.New("long position with non-positive quantity")
	}
	if sn.Cash.IsNegative() {
		return errors.New("negative cash")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
