package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rtemka/blog/domain"
)

// Postgres выполняет CRUD операции с БД.
type Postgres struct {
	db *pgxpool.Pool
}

// New выполняет подключение
// и возвращает объект для взаимодействия с БД.
func New(connstr string) (*Postgres, error) {

	pool, err := pgxpool.Connect(context.Background(), connstr)
	if err != nil {
		return nil, err
	}

	return &Postgres{db: pool}, pool.Ping(context.Background())
}

// Close выполняет закрытие подключения к БД.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

// AddPost создает пост, заполняет id и отметку времени.
func (p *Postgres) AddPost(ctx context.Context, post *domain.Post) error {
	if err := post.Validate(); err != nil {
		return err
	}
	post.CreatedAt = time.Now().Unix()

	stmt := `INSERT INTO posts(title, body, created_at) VALUES($1, $2, $3) RETURNING id;`

	return p.db.QueryRow(ctx, stmt, post.Title, post.Body, post.CreatedAt).Scan(&post.ID)
}

// Posts получает все посты, начиная с самого нового.
func (p *Postgres) Posts(ctx context.Context) ([]domain.Post, error) {
	stmt := `SELECT id, title, body, created_at FROM posts ORDER BY id DESC;`

	rows, err := p.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post

	for rows.Next() {
		var post domain.Post

		err := rows.Scan(&post.ID, &post.Title, &post.Body, &post.CreatedAt)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// Post получает пост по id.
func (p *Postgres) Post(ctx context.Context, id int64) (domain.Post, error) {
	stmt := `SELECT id, title, body, created_at FROM posts WHERE id = $1;`

	var post domain.Post

	err := p.db.QueryRow(ctx, stmt, id).Scan(
		&post.ID, &post.Title, &post.Body, &post.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return post, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}

	return post, err
}

// AddComment создает комментарий к посту. Комментарий
// всегда создается в состоянии [domain.Pending].
func (p *Postgres) AddComment(ctx context.Context, c *domain.Comment) error {
	return p.db.BeginFunc(ctx, func(tx pgx.Tx) error {

		// комментарий нельзя оставить к несуществующему посту
		var postID int64
		err := tx.QueryRow(ctx, `SELECT id FROM posts WHERE id = $1;`, c.PostID).Scan(&postID)
		if errors.Is(err, pgx.ErrNoRows) {
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
			VALUES($1, $2, $3, $4, 0) RETURNING id;`

		return tx.QueryRow(ctx, stmt, c.PostID, c.Author, c.Body, c.CreatedAt).Scan(&c.ID)
	})
}

// Comments получает одобренные комментарии к посту,
// начиная с самого старого. Это публичный путь чтения:
// комментарии в состоянии [domain.Pending] сюда не попадают.
func (p *Postgres) Comments(ctx context.Context, postID int64) ([]domain.Comment, error) {
	if _, err := p.Post(ctx, postID); err != nil {
		return nil, err
	}

	stmt := `
		SELECT id, post_id, author, body, created_at, approved
		FROM comments
		WHERE post_id = $1 AND approved = 1
		ORDER BY id;`

	rows, err := p.db.Query(ctx, stmt, postID)
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
func (p *Postgres) Pending(ctx context.Context) ([]domain.PendingComment, error) {
	stmt := `
		SELECT c.id, c.post_id, p.title, c.author, c.body, c.created_at, c.approved
		FROM comments AS c JOIN posts AS p ON p.id = c.post_id
		WHERE c.approved = 0
		ORDER BY c.created_at, c.id;`

	rows, err := p.db.Query(ctx, stmt)
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
func (p *Postgres) Approve(ctx context.Context, id int64) (domain.Comment, error) {
	var c domain.Comment

	err := p.db.BeginFunc(ctx, func(tx pgx.Tx) error {

		stmt := `SELECT id, post_id, author, body, created_at, approved FROM comments WHERE id = $1;`

		err := tx.QueryRow(ctx, stmt, id).Scan(&c.ID, &c.PostID,
			&c.Author, &c.Body, &c.CreatedAt, &c.Status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("comment %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if c.Status == domain.Approved {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE comments SET approved = 1 WHERE id = $1;`, id); err != nil {
			return err
		}
		c.Status = domain.Approved

		return nil
	})

	return c, err
}

// RunFile читает и исполняет sql-файл.
func (p *Postgres) RunFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// без аргументов pgx использует простой протокол,
	// поэтому файл может содержать несколько команд
	_, err = p.db.Exec(context.Background(), string(b))
	return err
}
