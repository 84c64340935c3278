package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rtemka/blog/domain"
)

var tdb *SQLite

func restoreDB(tdb *SQLite) error {
	b, err := os.ReadFile(filepath.Join("testdata", "t.sql"))
	if err != nil {
		return err
	}

	return tdb.exec(context.Background(), string(b))
}

func TestMain(m *testing.M) {

	var err error
	tdb, err = New("file:test.db?cache=shared&mode=memory&_fk=on")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := restoreDB(tdb); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestValidation(t *testing.T) {
	if tdb == nil {
		t.Skip("you must open connection to SQLite DB to run this test")
	}

	ctx := context.Background()

	// пустые и пробельные поля отклоняются до какой-либо записи
	invalid := []domain.Post{
		{Title: "", Body: "x"},
		{Title: "x", Body: ""},
		{Title: "   ", Body: "   "},
	}
	for i := range invalid {
		err := tdb.AddPost(ctx, &invalid[i])
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("AddPost(%+v) = err %v, wantErr %v", invalid[i], err, domain.ErrValidation)
		}
	}

	// пробелы по краям обрезаются до проверки на пустоту
	p := domain.Post{Title: " Hi ", Body: "Body"}
	if err := tdb.AddPost(ctx, &p); err != nil {
		t.Fatalf("AddPost() = err %v", err)
	}
	if p.Title != "Hi" {
		t.Errorf("AddPost() = title %q, want %q", p.Title, "Hi")
	}
	if p.ID == 0 || p.CreatedAt == 0 {
		t.Errorf("AddPost() = id %d, created_at %d, want both set", p.ID, p.CreatedAt)
	}

	c := domain.Comment{PostID: p.ID, Author: "  ", Body: ""}
	if err := tdb.AddComment(ctx, &c); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("AddComment() = err %v, wantErr %v", err, domain.ErrValidation)
	}
}

func TestSQLite(t *testing.T) {
	if tdb == nil {
		t.Skip("you must open connection to SQLite DB to run this test")
	}

	ctx := context.Background()

	p1 := domain.Post{Title: "P1", Body: "Body one"}
	p2 := domain.Post{Title: "P2", Body: "Body two"}
	for _, p := range []*domain.Post{&p1, &p2} {
		if err := tdb.AddPost(ctx, p); err != nil {
			t.Fatalf("AddPost() = err %v", err)
		}
	}

	// посты приходят начиная с самого нового
	posts, err := tdb.Posts(ctx)
	if err != nil {
		t.Fatalf("Posts() = err %v", err)
	}
	var prev int64
	for i := range posts {
		if prev != 0 && posts[i].ID > prev {
			t.Errorf("Posts() = id %d after %d, want descending order", posts[i].ID, prev)
		}
		prev = posts[i].ID
	}

	if _, err := tdb.Post(ctx, 999999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Post() = err %v, wantErr %v", err, domain.ErrNotFound)
	}

	// комментарий к несуществующему посту не создается
	orphan := domain.Comment{PostID: 999999, Author: "A", Body: "B"}
	if err := tdb.AddComment(ctx, &orphan); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("AddComment() = err %v, wantErr %v", err, domain.ErrNotFound)
	}
	if _, err := tdb.Comments(ctx, 999999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Comments() = err %v, wantErr %v", err, domain.ErrNotFound)
	}

	c1 := domain.Comment{PostID: p1.ID, Author: " Ann ", Body: "Hi"}
	c2 := domain.Comment{PostID: p2.ID, Author: "Bob", Body: "Other post"}
	c3 := domain.Comment{PostID: p1.ID, Author: "Cid", Body: "Later"}
	for _, c := range []*domain.Comment{&c1, &c2, &c3} {
		if err := tdb.AddComment(ctx, c); err != nil {
			t.Fatalf("AddComment() = err %v", err)
		}
		if c.Status != domain.Pending {
			t.Errorf("AddComment() = status %v, want %v", c.Status, domain.Pending)
		}
	}
	if c1.Author != "Ann" {
		t.Errorf("AddComment() = author %q, want %q", c1.Author, "Ann")
	}

	// до одобрения публичный путь чтения пуст
	coms, err := tdb.Comments(ctx, p1.ID)
	if err != nil {
		t.Fatalf("Comments() = err %v", err)
	}
	if len(coms) != 0 {
		t.Fatalf("Comments() = %d records before approval, want %d", len(coms), 0)
	}

	// очередь модерации глобальная, от старых к новым,
	// с заголовком родительского поста
	pending, err := tdb.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() = err %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Pending() = %d records, want %d", len(pending), 3)
	}
	wantOrder := []int64{c1.ID, c2.ID, c3.ID}
	wantTitles := []string{p1.Title, p2.Title, p1.Title}
	for i := range pending {
		if pending[i].ID != wantOrder[i] {
			t.Errorf("Pending() = id %d at %d, want %d", pending[i].ID, i, wantOrder[i])
		}
		if pending[i].PostTitle != wantTitles[i] {
			t.Errorf("Pending() = post_title %q, want %q", pending[i].PostTitle, wantTitles[i])
		}
	}

	if _, err := tdb.Approve(ctx, 999999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Approve() = err %v, wantErr %v", err, domain.ErrNotFound)
	}

	// одобрение идемпотентно: второй вызов возвращает ту же запись
	for i := 0; i < 2; i++ {
		got, err := tdb.Approve(ctx, c3.ID)
		if err != nil {
			t.Fatalf("Approve() = err %v", err)
		}
		if got.Status != domain.Approved {
			t.Errorf("Approve() #%d = status %v, want %v", i+1, got.Status, domain.Approved)
		}
	}
	if _, err := tdb.Approve(ctx, c1.ID); err != nil {
		t.Fatalf("Approve() = err %v", err)
	}

	// публичный путь отдает только одобренное, от старых к новым
	coms, err = tdb.Comments(ctx, p1.ID)
	if err != nil {
		t.Fatalf("Comments() = err %v", err)
	}
	if len(coms) != 2 {
		t.Fatalf("Comments() = %d records, want %d", len(coms), 2)
	}
	if coms[0].ID != c1.ID || coms[1].ID != c3.ID {
		t.Errorf("Comments() = order %d,%d, want %d,%d", coms[0].ID, coms[1].ID, c1.ID, c3.ID)
	}

	// в очереди остается только неодобренный комментарий
	pending, err = tdb.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() = err %v", err)
	}
	if len(pending) != 1 || pending[0].ID != c2.ID {
		t.Fatalf("Pending() = %v, want single record %d", pending, c2.ID)
	}
}
