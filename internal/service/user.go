package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
	"tuweeter/internal/model"
	"tuweeter/internal/repository"
	"tuweeter/internal/visibility"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	IssueToken(userID int64) (string, error)
}

// UserService handles accounts, profiles and privacy.
type UserService struct {
	users         repository.UserRepository
	follows       repository.FollowRepository
	tweets        repository.TweetRepository
	tokens        TokenIssuer
	media         MediaStore
	defaultAvatar string
	timeout       storeTimeout
}

func NewUserService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	tweets repository.TweetRepository,
	tokens TokenIssuer,
	media MediaStore,
	defaultAvatar string,
	timeout time.Duration,
) *UserService {
	return &UserService{
		users:         users,
		follows:       follows,
		tweets:        tweets,
		tokens:        tokens,
		media:         media,
		defaultAvatar: defaultAvatar,
		timeout:       storeTimeout(timeout),
	}
}

// Signup creates an account and returns it with a fresh token.
func (s *UserService) Signup(ctx context.Context, req *model.SignupRequest) (*model.AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	email := model.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewValidationError("email", "A valid email is required")
	}
	if utf8.RuneCountInString(req.Password) < model.MinPasswordLength {
		return nil, model.NewValidationError("password", fmt.Sprintf("Password must be at least %d characters", model.MinPasswordLength))
	}
	if err := validateBio(req.Bio); err != nil {
		return nil, err
	}
	if err := validateGender(req.Gender); err != nil {
		return nil, err
	}
	dob, err := parseDOB(req.DOB)
	if err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:       username,
		Email:          email,
		PasswordHashed: string(hashed),
		Bio:            req.Bio,
		DOB:            dob,
		Gender:         req.Gender,
	}
	if s.defaultAvatar != "" {
		avatar := s.defaultAvatar
		user.AvatarURL = &avatar
	}

	wctx, cancel := s.timeout.write(ctx)
	defer cancel()
	if err := s.users.Create(wctx, user); err != nil {
		return nil, storeErr(err)
	}

	return s.authResponse(user)
}

// Login checks credentials by email. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	rctx, cancel := s.timeout.read(ctx)
	defer cancel()

	user, err := s.users.GetByEmail(rctx, model.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHashed), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return s.authResponse(user)
}

func (s *UserService) authResponse(user *model.User) (*model.AuthResponse, error) {
	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{User: user, Token: token}, nil
}

func (s *UserService) Me(ctx context.Context, userID int64) (*model.User, error) {
	rctx, cancel := s.timeout.read(ctx)
	defer cancel()

	user, err := s.users.GetByID(rctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

// UpdateProfile applies the provided fields and an optional new avatar. The
// previous avatar object is deleted once the new one is saved.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *model.UpdateProfileRequest, avatar *Upload) (*model.User, error) {
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		if err := validateUsername(trimmed); err != nil {
			return nil, err
		}
		req.Username = &trimmed
	}
	if err := validateBio(req.Bio); err != nil {
		return nil, err
	}
	if err := validateGender(req.Gender); err != nil {
		return nil, err
	}
	dob, err := parseDOB(req.DOB)
	if err != nil {
		return nil, err
	}

	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	current, err := s.users.GetByID(wctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}

	if avatar != nil {
		if s.media == nil {
			return nil, model.ErrMediaNotConfigured
		}
		uploaded, err := s.media.UploadAvatar(wctx, *avatar)
		if err != nil {
			return nil, err
		}
		req.AvatarURL = &uploaded.URL
		req.AvatarKey = &uploaded.Key
	}

	updated, err := s.users.UpdateProfile(wctx, userID, req, dob)
	if err != nil {
		if req.AvatarKey != nil {
			s.deleteObject(wctx, *req.AvatarKey)
		}
		return nil, storeErr(err)
	}

	if req.AvatarKey != nil && current.AvatarKey != nil && *current.AvatarKey != *req.AvatarKey {
		s.deleteObject(wctx, *current.AvatarKey)
	}
	return updated, nil
}

func (s *UserService) deleteObject(ctx context.Context, key string) {
	if err := s.media.DeleteObject(ctx, key); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to delete media object")
	}
}

// SetPrivacy flips the owner's privacy flag. Existing followers and pending
// requests are left untouched.
func (s *UserService) SetPrivacy(ctx context.Context, userID int64, isPrivate bool) (*model.User, error) {
	wctx, cancel := s.timeout.write(ctx)
	defer cancel()

	user, err := s.users.SetPrivacy(wctx, userID, isPrivate)
	metrics.ObserveMutation("set_privacy", err)
	if err != nil {
		return nil, storeErr(err)
	}
	return user, nil
}

// Search returns up to model.SearchLimit users whose username contains query.
func (s *UserService) Search(ctx context.Context, query string) ([]model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.UserSummary{}, nil
	}

	rctx, cancel := s.timeout.read(ctx)
	defer cancel()

	users, err := s.users.Search(rctx, query, model.SearchLimit)
	if err != nil {
		return nil, storeErr(err)
	}
	return users, nil
}

// GetProfile returns username's profile as seen by viewerID (0 when
// anonymous). The follower and following lists and the tweets of a private
// account are only filled for the owner and accepted followers.
func (s *UserService) GetProfile(ctx context.Context, viewerID int64, username string) (*model.Profile, error) {
	rctx, cancel := s.timeout.read(ctx)
	defer cancel()

	user, err := s.users.GetByUsername(rctx, username)
	if err != nil {
		return nil, storeErr(err)
	}

	profile := &model.Profile{
		User:         *user,
		FollowStatus: model.FollowNone,
		Followers:    []model.UserSummary{},
		Following:    []model.UserSummary{},
		Tweets:       []model.Tweet{},
	}

	if viewerID != visibility.Anonymous && viewerID != user.ID {
		status, err := s.follows.Status(rctx, viewerID, user.ID)
		if err != nil {
			return nil, storeErr(err)
		}
		profile.FollowStatus = status
	}

	author := visibility.Author{ID: user.ID, IsPrivate: user.IsPrivate}
	if !visibility.CanView(viewerID, author, profile.FollowStatus == model.FollowFollowing) {
		profile.Restricted = true
		return profile, nil
	}

	if profile.Followers, err = s.follows.GetFollowers(rctx, user.ID); err != nil {
		return nil, storeErr(err)
	}
	if profile.Following, err = s.follows.GetFollowing(rctx, user.ID); err != nil {
		return nil, storeErr(err)
	}
	if profile.Tweets, err = s.tweets.ListByAuthors(rctx, []int64{user.ID}, 0, model.ProfileTweetLimit); err != nil {
		return nil, storeErr(err)
	}
	return profile, nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < model.MinUsernameLength || n > model.MaxUsernameLength {
		return model.NewValidationError("username",
			fmt.Sprintf("Username must be %d to %d characters", model.MinUsernameLength, model.MaxUsernameLength))
	}
	if strings.ContainsAny(username, " \t\r\n/") {
		return model.NewValidationError("username", "Username cannot contain spaces or slashes")
	}
	return nil
}

func validateBio(bio *string) error {
	if bio != nil && utf8.RuneCountInString(*bio) > model.MaxBioLength {
		return model.NewValidationError("bio", fmt.Sprintf("Bio cannot exceed %d characters", model.MaxBioLength))
	}
	return nil
}

func validateGender(gender *string) error {
	if gender != nil && !model.IsValidGender(*gender) {
		return model.NewValidationError("gender", "Invalid gender")
	}
	return nil
}

func parseDOB(dob *string) (*time.Time, error) {
	if dob == nil || strings.TrimSpace(*dob) == "" {
		return nil, nil
	}
	t, err := time.Parse(model.DateLayout, strings.TrimSpace(*dob))
	if err != nil {
		return nil, model.NewValidationError("dob", "Date of birth must be YYYY-MM-DD")
	}
	if t.After(time.Now()) {
		return nil, model.NewValidationError("dob", "Date of birth cannot be in the future")
	}
	return &t, nil
}
