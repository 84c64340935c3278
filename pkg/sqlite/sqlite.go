package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rtemka/blog/domain"
)

// SQLite выполняет операции CRUD в БД.
type SQLite struct {
	// это поле экпортируемое, чтобы пользователь
	// мог установить такие важные параметры подлючения как
	// SetConnMaxIdleTime, SetMaxOpenConns, SetMaxIdleConns...
	DB *sql.DB
}

// New производит подключение к [*SQLite] БД.
func New(connstr string) (*SQLite, error) {

	db, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, err
	}

	return &SQLite{DB: db}, db.Ping()
}

// Close closes db connection.
func (l *SQLite) Close() error {
	return l.DB.Close()
}

// AddPost создает пост, заполняет id и отметку времени.
func (l *SQLite) AddPost(ctx context.Context, p *domain.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.CreatedAt = time.Now().Unix()

	stmt := `INSERT INTO posts(title, body, created_at) VALUES($1, $2, $3);`

	res, err := l.DB.ExecContext(ctx, stmt, p.Title, p.Body, p.CreatedAt)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// Posts получает все посты, начиная с самого нового.
func (l *SQLite) Posts(ctx context.Context) ([]domain.Post, error) {
	stmt := `SELECT id, title, body, created_at FROM posts ORDER BY id DESC;`

	rows, err := l.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post

	for rows.Next() {
		var p domain.Post

		err := rows.Scan(&p.ID, &p.Title, &p.Body, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	return posts, rows.Err()
}

// Post получает пост по id.
func (l *SQLite) Post(ctx context.Context, id int64) (domain.Post, error) {
	stmt := `SELECT id, title, body, created_at FROM posts WHERE id = $1;`

	var p domain.Post

	err := l.DB.QueryRowContext(ctx, stmt, id).Scan(
		&p.ID, &p.Title, &p.Body, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}

	return p, err
}

// AddComment создает комментарий к посту. Комментарий
// всегда создается в состоянии [domain.Pending].
func (l *SQLite) AddComment(ctx context.Context, c *domain.Comment) error {
	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// комментарий нельзя оставить к несуществующему посту
	var postID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE id = $1;`, c.PostID).Scan(&postID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("post %d: %w", c.PostID, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if err := c.Validate(); err != nil {
		return err
	}
	c.CreatedAt = time.Now().Unix()
	c.Status = domain.Pending

	stmt := `INSERT INTO comments(post_id, author, body, created_at, approved)
		VALUES($1, $2, $3, $4, 0);`

	res, err := tx.ExecContext(ctx, stmt, c.PostID, c.Author, c.Body, c.CreatedAt)
	if err != nil {
		return err
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	return tx.Commit()
}

// Comments получает одобренные комментарии к посту,
// начиная с самого старого. Это публичный путь чтения:
// комментарии в состоянии [domain.Pending] сюда не попадают.
func (l *SQLite) Comments(ctx context.Context, postID int64) ([]domain.Comment, error) {
	if _, err := l.Post(ctx, postID); err != nil {
		return nil, err
	}

	stmt := `
		SELECT id, post_id, author, body, created_at, approved
		FROM comments
		WHERE post_id = $1 AND approved = 1
		ORDER BY id;`

	rows, err := l.DB.QueryContext(ctx, stmt, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coms []domain.Comment

	for rows.Next() {
		var c domain.Comment

		err := rows.Scan(&c.ID, &c.PostID, &c.Author,
			&c.Body, &c.CreatedAt, &c.Status)
		if err != nil {
			return nil, err
		}
		coms = append(coms, c)
	}

	return coms, rows.Err()
}

// Pending получает очередь модерации: все неодобренные комментарии
// ко всем постам, начиная с самого старого, вместе с заголовком поста.
func (l *SQLite) Pending(ctx context.Context) ([]domain.PendingComment, error) {
	stmt := `
		SELECT c.id, c.post_id, p.title, c.author, c.body, c.created_at, c.approved
		FROM comments AS c JOIN posts AS p ON p.id = c.post_id
		WHERE c.approved = 0
		ORDER BY c.created_at, c.id;`

	rows, err := l.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coms []domain.PendingComment

	for rows.Next() {
		var c domain.PendingComment

		err := rows.Scan(&c.ID, &c.PostID, &c.PostTitle, &c.Author,
			&c.Body, &c.CreatedAt, &c.Status)
		if err != nil {
			return nil, err
		}
		coms = append(coms, c)
	}

	return coms, rows.Err()
}

// Approve переводит комментарий в состояние [domain.Approved].
// Повторный вызов для уже одобренного комментария - no-op,
// возвращается текущая запись.
func (l *SQLite) Approve(ctx context.Context, id int64) (domain.Comment, error) {
	var c domain.Comment

	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return c, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := `SELECT id, post_id, author, body, created_at, approved FROM comments WHERE id = $1;`

	err = tx.QueryRowContext(ctx, stmt, id).Scan(&c.ID, &c.PostID,
		&c.Author, &c.Body, &c.CreatedAt, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("comment %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return c, err
	}

	if c.Status == domain.Approved {
		return c, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE comments SET approved = 1 WHERE id = $1;`, id); err != nil {
		return c, err
	}
	c.Status = domain.Approved

	return c, tx.Commit()
}

// RunFile читает и исполняет sql-файл.
func (l *SQLite) RunFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return l.exec(context.Background(), string(b))
}

// exec вспомогательная функция, выполняет
// *tx.Exec() в транзакции.
func (l *SQLite) exec(ctx context.Context, stmt string, args ...any) error {
	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return err
	}

	return tx.Commit()
}
