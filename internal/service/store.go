package service

import "landiq/internal/repository"

// Ensure both repositories implement ValuationStore
var (
	_ ValuationStore = (*repository.ValuationRepository)(nil)
	_ ValuationStore = (*repository.MemoryValuationRepository)(nil)
)
