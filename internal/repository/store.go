package repository

import "gorm.io/gorm"

// Store is the session store the realtime layer talks to: sessions,
// participants and chat history behind one value.
type Store struct {
	*SessionRepositoryImpl
	*MessageRepositoryImpl
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		SessionRepositoryImpl: NewSessionRepository(db),
		MessageRepositoryImpl: NewMessageRepository(db),
	}
}
