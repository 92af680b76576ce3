package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

type txContextKey struct{}

// withTx stores the active transaction on the context so repository calls made
// inside UnitOfWork.RunInTx share one transactional scope. Firestore requires
// all reads to happen before the first buffered write; callers sequencing
// multiple repositories inside a transaction must respect that ordering.
func withTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFrom(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

func getDocument(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := txFrom(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

func setDocument(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	if tx, ok := txFrom(ctx); ok {
		return tx.Set(ref, value)
	}
	_, err := ref.Set(ctx, value)
	return err
}

func createDocument(ctx context.Context, ref *firestore.DocumentRef, value any) error {
	if tx, ok := txFrom(ctx); ok {
		return tx.Create(ref, value)
	}
	_, err := ref.Create(ctx, value)
	return err
}

func deleteDocument(ctx context.Context, ref *firestore.DocumentRef) error {
	if tx, ok := txFrom(ctx); ok {
		return tx.Delete(ref)
	}
	_, err := ref.Delete(ctx)
	return err
}
