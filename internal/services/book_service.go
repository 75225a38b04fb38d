package services

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/auth"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// BookService manages the catalogue. Availability is owned by LoanService and
// cannot be changed here.
type BookService interface {
	List(ctx context.Context, who auth.Identity) ([]models.Book, error)
	Get(ctx context.Context, who auth.Identity, bookID uuid.UUID) (*models.Book, error)
	Create(ctx context.Context, who auth.Identity, title, author string) (*models.Book, error)
	Update(ctx context.Context, who auth.Identity, bookID uuid.UUID, upd BookUpdate) (*models.Book, error)
	Delete(ctx context.Context, who auth.Identity, bookID uuid.UUID) error
}

type BookUpdate struct {
	Title  *string
	Author *string
}

type bookService struct {
	db       *gorm.DB
	bookRepo repositories.BookRepository
	loanRepo repositories.LoanRepository
}

func NewBookService(db *gorm.DB, bookRepo repositories.BookRepository, loanRepo repositories.LoanRepository) BookService {
	return &bookService{db: db, bookRepo: bookRepo, loanRepo: loanRepo}
}

func (s *bookService) List(ctx context.Context, who auth.Identity) ([]models.Book, error) {
	if err := authorize(auth.OpBookRead, who); err != nil {
		return nil, err
	}
	books, err := s.bookRepo.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, asServiceError("ListBooks", err)
	}
	return books, nil
}

func (s *bookService) Get(ctx context.Context, who auth.Identity, bookID uuid.UUID) (*models.Book, error) {
	if err := authorize(auth.OpBookRead, who); err != nil {
		return nil, err
	}
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), bookID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBookMissing
		}
		return nil, asServiceError("GetBook", err)
	}
	return book, nil
}

// Create adds a book to the catalogue. New books are always available.
func (s *bookService) Create(ctx context.Context, who auth.Identity, title, author string) (*models.Book, error) {
	if err := authorize(auth.OpBookWrite, who); err != nil {
		return nil, err
	}
	title, author = strings.TrimSpace(title), strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, ValidationError("title and author are required.")
	}
	book := &models.Book{Title: title, Author: author, IsAvailable: true}
	if err := s.bookRepo.Create(s.db.WithContext(ctx), book); err != nil {
		return nil, asServiceError("CreateBook", err)
	}
	log.Printf("[INFO] CreateBook: created book %q (id=%s)", book.Title, book.ID)
	return book, nil
}

func (s *bookService) Update(ctx context.Context, who auth.Identity, bookID uuid.UUID, upd BookUpdate) (*models.Book, error) {
	if err := authorize(auth.OpBookWrite, who); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, ValidationError("title may not be blank.")
		}
		fields["title"] = title
	}
	if upd.Author != nil {
		author := strings.TrimSpace(*upd.Author)
		if author == "" {
			return nil, ValidationError("author may not be blank.")
		}
		fields["author"] = author
	}

	var book *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, bookID); err != nil {
			if isNotFound(err) {
				return ErrBookMissing
			}
			return err
		}
		if len(fields) > 0 {
			if err := s.bookRepo.Update(tx, bookID, fields); err != nil {
				return err
			}
		}
		var err error
		book, err = s.bookRepo.GetByID(tx, bookID)
		return err
	})
	if err != nil {
		return nil, asServiceError("UpdateBook", err)
	}
	return book, nil
}

// Delete removes a book together with its loan history.
func (s *bookService) Delete(ctx context.Context, who auth.Identity, bookID uuid.UUID) error {
	if err := authorize(auth.OpBookWrite, who); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, bookID); err != nil {
			if isNotFound(err) {
				return ErrBookMissing
			}
			return err
		}
		if err := s.loanRepo.DeleteByBook(tx, bookID); err != nil {
			return err
		}
		return s.bookRepo.Delete(tx, bookID)
	})
	if err != nil {
		return asServiceError("DeleteBook", err)
	}
	log.Printf("[INFO] DeleteBook: book %s deleted by %s", bookID, who.UserID)
	return nil
}
