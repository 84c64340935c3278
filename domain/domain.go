// Пакет domain содержит модель данных блога, общую для всех
// хранилищ, и контракт, на котором строится REST API.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Ошибки-сигналы, возвращаемые реализациями [Repository].
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
)

// Status - состояние модерации комментария.
// Единственный допустимый переход: Pending -> Approved.
type Status int

const (
	Pending Status = iota
	Approved
)

func (s Status) String() string {
	return []string{"pending", "approved"}[s]
}

// MarshalJSON кодирует состояние как логическое
// поле "approved" формата передачи.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s == Approved)
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var approved bool
	if err := json.Unmarshal(b, &approved); err != nil {
		return err
	}
	*s = Pending
	if approved {
		*s = Approved
	}
	return nil
}

// Scan считывает целочисленную (или логическую) колонку approved
// в Status; используется и database/sql, и pgx.
func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*s = Pending
		if v != 0 {
			*s = Approved
		}
	case bool:
		*s = Pending
		if v {
			*s = Approved
		}
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	return nil
}

// Post - модель данных поста. Пост виден всем читателям
// сразу после создания.
type Post struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// Validate обрезает пробелы у текстовых полей и возвращает
// [ErrValidation], если какое-либо из них оказалось пустым.
func (p *Post) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	p.Body = strings.TrimSpace(p.Body)
	if p.Title == "" || p.Body == "" {
		return fmt.Errorf("%w: title and body must not be empty", ErrValidation)
	}
	return nil
}

// Comment - модель данных комментария к посту. Комментарий создается
// в состоянии [Pending] и не виден на публичном пути чтения,
// пока не будет одобрен.
type Comment struct {
	ID        int64  `json:"id"`
	PostID    int64  `json:"post_id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
	Status    Status `json:"approved"`
}

func (c *Comment) Validate() error {
	c.Author = strings.TrimSpace(c.Author)
	c.Body = strings.TrimSpace(c.Body)
	if c.Author == "" || c.Body == "" {
		return fmt.Errorf("%w: author and body must not be empty", ErrValidation)
	}
	return nil
}

// PendingComment - элемент очереди модерации: сам комментарий
// плюс заголовок родительского поста для контекста модератора.
type PendingComment struct {
	Comment
	PostTitle string `json:"post_title"`
}

type Repository interface {
	AddPost(ctx context.Context, p *Post) error                    // создать пост, заполнить id и отметку времени
	Posts(ctx context.Context) ([]Post, error)                     // получить все посты, начиная с самого нового
	Post(ctx context.Context, id int64) (Post, error)              // получить пост по id
	AddComment(ctx context.Context, c *Comment) error              // создать комментарий к существующему посту
	Comments(ctx context.Context, postID int64) ([]Comment, error) // одобренные комментарии к посту, начиная с самого старого
	Pending(ctx context.Context) ([]PendingComment, error)         // очередь модерации по всем постам, начиная с самого старого
	Approve(ctx context.Context, id int64) (Comment, error)        // перевести комментарий в Approved, идемпотентно
	Close() error                                                  // закрыть соединение с БД.
}
