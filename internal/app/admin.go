package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hitoshi/linkpulse/internal/config"
	"github.com/hitoshi/linkpulse/internal/repository"
	"github.com/hitoshi/linkpulse/internal/user"
)

// repositorySet はPostgreSQL接続とリポジトリの組。
type repositorySet struct {
	db       *sql.DB
	users    *repository.PostgresUserRepo
	sessions *repository.PostgresSessionRepo
}

// runAdmin はユーザー管理コマンドを実行する。
func runAdmin(cfg *config.Config, cmd Command, email string, stdin io.Reader, out io.Writer) error {
	repos, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer repos.db.Close()

	svc, err := NewServices(cfg, repos.users, repos.sessions)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch cmd {
	case CommandCreateUser:
		return createUser(ctx, svc.Accounts, email, stdin, out)
	case CommandDeleteUser:
		return deleteUser(ctx, svc.Accounts, email, out)
	default:
		return fmt.Errorf("unknown admin command: %s", cmd)
	}
}

// createUser は標準入力の1行目をパスワードとしてユーザーを作成する。
// パスワードはコマンドライン引数では受け付けない。
func createUser(ctx context.Context, accounts *user.Service, email string, stdin io.Reader, out io.Writer) error {
	password, err := readPassword(stdin)
	if err != nil {
		return err
	}

	u, err := accounts.Register(ctx, email, password)
	if err != nil {
		var verr *user.ValidationError
		if errors.As(err, &verr) {
			for field, msg := range verr.Fields {
				fmt.Fprintf(out, "%s: %s\n", field, msg)
			}
		}
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return fmt.Errorf("email already registered: %s", email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", slog.String("user_id", u.ID))
	fmt.Fprintf(out, "created user %s (%s)\n", u.Email, u.ID)
	return nil
}

// deleteUser はユーザーを論理削除し、全セッションを削除する。
func deleteUser(ctx context.Context, accounts *user.Service, email string, out io.Writer) error {
	if err := accounts.Withdraw(ctx, email); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return fmt.Errorf("user not found: %s", email)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	fmt.Fprintf(out, "deleted user %s\n", email)
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must be provided on stdin")
	}
	return password, nil
}
