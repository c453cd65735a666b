package models

import "time"

type Book struct {
	ID          string    `bson:"_id" db:"id" json:"id"`
	ISBN        string    `bson:"isbn,omitempty" db:"isbn" json:"isbn,omitempty"`
	Title       string    `bson:"title" db:"title" json:"title"`
	Author      string    `bson:"author" db:"author" json:"author"`
	Category    string    `bson:"category,omitempty" db:"category" json:"category,omitempty"`
	Publisher   string    `bson:"publisher,omitempty" db:"publisher" json:"publisher,omitempty"`
	PublishYear int       `bson:"publishYear,omitempty" db:"publish_year" json:"publishYear,omitempty"`
	Description string    `bson:"description,omitempty" db:"description" json:"description,omitempty"`
	CoverURL    string    `bson:"coverUrl,omitempty" db:"cover_url" json:"coverUrl,omitempty"`
	CoverS3Key  string    `bson:"coverS3Key,omitempty" db:"cover_s3_key" json:"-"` // object key in S3
	TotalQty    int       `bson:"totalQty" db:"total_qty" json:"totalQty"`
	BorrowedQty int       `bson:"borrowedQty" db:"borrowed_qty" json:"borrowedQty"`
	CreatedAt   time.Time `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

// Available is the number of copies on the shelf.
func (b *Book) Available() int {
	return b.TotalQty - b.BorrowedQty
}

// CategoryCount is one row of the books-by-category report.
type CategoryCount struct {
	Category string `bson:"_id" db:"category" json:"category"`
	Titles   int    `bson:"titles" db:"titles" json:"titles"`
	Copies   int    `bson:"copies" db:"copies" json:"copies"`
}
