package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidFilter  ErrCode = "INVALID_FILTER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Assessment-specific ───────────────────────────────────────────
	ErrInvalidIndex      ErrCode = "INVALID_INDEX"
	ErrInvalidOption     ErrCode = "INVALID_OPTION"
	ErrInvalidTransition ErrCode = "INVALID_TRANSITION"
	ErrAlreadyCompleted  ErrCode = "ALREADY_COMPLETED"
	ErrNoSession         ErrCode = "NO_SESSION"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrPersistFailed     ErrCode = "PERSIST_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidFilter:
		return "Filter status harus all, pending, atau completed."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Tes tidak ditemukan."

	// ─── Assessment-specific ───────────────────────────────────────────
	case ErrInvalidIndex:
		return "Nomor soal di luar jangkauan."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak tersedia pada soal ini."
	case ErrInvalidTransition:
		return "Tindakan ini tidak tersedia pada status tes saat ini."
	case ErrAlreadyCompleted:
		return "Anda sudah menyelesaikan tes ini."
	case ErrNoSession:
		return "Tidak ada sesi tes yang aktif."
	case ErrNoQuestions:
		return "Tes ini tidak memiliki soal."
	case ErrPersistFailed:
		return "Jawaban diterima dan sedang disimpan ulang."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
