package expense

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = Describe("Accounts", func() {
	var (
		ctx     context.Context
		db      *mockDB
		storage *mockStorage
		timeSrc *mockTimeSource
		service *Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMockDB()
		storage = newMockStorage()
		timeSrc = &mockTimeSource{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, newMockScanner(), storage, &mockIDGenerator{id: "id"}, timeSrc).
			WithPasswordCost(bcrypt.MinCost)
	})

	register := func() *User {
		user, err := service.Register(ctx, RegisterInput{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "Ada@Example.com",
			Password:  "secret1",
		})
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	Describe("Register", func() {
		var (
			input RegisterInput
			user  *User
			err   error
		)

		BeforeEach(func() {
			input = RegisterInput{
				FirstName: " Ada ",
				LastName:  "Lovelace",
				Email:     " Ada@Example.com ",
				Password:  "secret1",
			}
		})

		JustBeforeEach(func() {
			user, err = service.Register(ctx, input)
		})

		When("the input is valid", func() {
			It("should create the user", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(user.ID).NotTo(BeZero())
				Expect(user.FirstName).To(Equal("Ada"))
			})

			It("should normalize the email", func() {
				Expect(user.Email).To(Equal("ada@example.com"))
			})

			It("should store a bcrypt hash instead of the password", func() {
				Expect(user.PasswordHash).NotTo(Equal("secret1"))
				Expect(bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1"))).To(Succeed())
			})
		})

		When("the email is already registered", func() {
			BeforeEach(func() {
				register()
			})

			It("should return ErrEmailTaken", func() {
				Expect(err).To(MatchError(ErrEmailTaken))
			})
		})

		When("the password is too short", func() {
			BeforeEach(func() {
				input.Password = "abc"
			})

			It("should return an invalid input error", func() {
				Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
			})
		})

		When("the email has no @", func() {
			BeforeEach(func() {
				input.Email = "ada.example.com"
			})

			It("should return an invalid input error", func() {
				Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
			})
		})

		When("the first name is missing", func() {
			BeforeEach(func() {
				input.FirstName = ""
			})

			It("should return an invalid input error", func() {
				Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
				Expect(db.users).To(BeEmpty())
			})
		})
	})

	Describe("Authenticate", func() {
		BeforeEach(func() {
			register()
		})

		It("should accept the right password with any email case", func() {
			user, err := service.Authenticate(ctx, "ADA@example.com", "secret1")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.FirstName).To(Equal("Ada"))
		})

		It("should reject a wrong password", func() {
			_, err := service.Authenticate(ctx, "ada@example.com", "wrong-password")
			Expect(err).To(MatchError(ErrInvalidCredentials))
		})

		It("should reject an unknown email the same way", func() {
			_, err := service.Authenticate(ctx, "bob@example.com", "secret1")
			Expect(err).To(MatchError(ErrInvalidCredentials))
		})

		It("should wrap database errors", func() {
			db.userErr = errors.New("database error")
			_, err := service.Authenticate(ctx, "ada@example.com", "secret1")
			Expect(err).To(MatchError(ContainSubstring("looking up user")))
		})
	})

	Describe("EmailExists", func() {
		BeforeEach(func() {
			register()
		})

		It("should find a registered email", func() {
			Expect(service.EmailExists(ctx, "ada@example.com")).To(BeTrue())
		})

		It("should not find an unknown email", func() {
			Expect(service.EmailExists(ctx, "bob@example.com")).To(BeFalse())
		})

		It("should treat a blank email as unused", func() {
			Expect(service.EmailExists(ctx, "  ")).To(BeFalse())
		})
	})

	Describe("UpdateDetails", func() {
		It("should change the name", func() {
			user := register()
			updated, err := service.UpdateDetails(ctx, user.ID, "Augusta", " King ")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.FirstName).To(Equal("Augusta"))
			Expect(db.users[user.ID].LastName).To(Equal("King"))
		})

		It("should require a first name", func() {
			user := register()
			_, err := service.UpdateDetails(ctx, user.ID, " ", "King")
			Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
		})

		It("should return ErrNotFound for an unknown user", func() {
			_, err := service.UpdateDetails(ctx, 42, "Ada", "")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ChangePassword", func() {
		var (
			user                      *User
			current, newPass, confirm string
			err                       error
		)

		BeforeEach(func() {
			user = register()
			current = "secret1"
			newPass = "better-secret"
			confirm = "better-secret"
		})

		JustBeforeEach(func() {
			err = service.ChangePassword(ctx, user.ID, current, newPass, confirm)
		})

		When("everything checks out", func() {
			It("should accept the new password afterwards", func() {
				Expect(err).NotTo(HaveOccurred())
				_, authErr := service.Authenticate(ctx, "ada@example.com", "better-secret")
				Expect(authErr).NotTo(HaveOccurred())
			})
		})

		When("the current password is wrong", func() {
			BeforeEach(func() {
				current = "nope-nope"
			})

			It("should return ErrInvalidCredentials", func() {
				Expect(err).To(MatchError(ErrInvalidCredentials))
			})
		})

		When("the confirmation differs", func() {
			BeforeEach(func() {
				confirm = "other-secret"
			})

			It("should return ErrPasswordMismatch", func() {
				Expect(err).To(MatchError(ErrPasswordMismatch))
			})
		})

		When("the new password is too short", func() {
			BeforeEach(func() {
				newPass = "abc"
				confirm = "abc"
			})

			It("should return an invalid input error and keep the old password", func() {
				Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
				_, authErr := service.Authenticate(ctx, "ada@example.com", "secret1")
				Expect(authErr).NotTo(HaveOccurred())
			})
		})
	})

	Describe("ChangePhoto", func() {
		var user *User

		BeforeEach(func() {
			user = register()
		})

		It("should store the photo under the user's name", func() {
			updated, err := service.ChangePhoto(ctx, user.ID, "me.PNG", []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.ProfilePic).To(Equal("profile_pics/user_1.png"))
			Expect(storage.files).To(HaveKey("profile_pics/user_1.png"))
		})

		It("should remove a previous photo with another extension", func() {
			_, err := service.ChangePhoto(ctx, user.ID, "me.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.ChangePhoto(ctx, user.ID, "me.jpg", []byte("jpg"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.files).NotTo(HaveKey("profile_pics/user_1.png"))
			Expect(storage.files).To(HaveKey("profile_pics/user_1.jpg"))
		})

		It("should reject other formats", func() {
			_, err := service.ChangePhoto(ctx, user.ID, "me.gif", []byte("gif"))
			Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
			Expect(storage.files).To(BeEmpty())
		})

		It("should serve the stored photo", func() {
			_, err := service.ChangePhoto(ctx, user.ID, "me.jpeg", []byte("jpeg-bytes"))
			Expect(err).NotTo(HaveOccurred())
			data, contentType, err := service.GetProfilePhoto(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg-bytes")))
			Expect(contentType).To(Equal("image/jpeg"))
		})

		It("should return ErrNotFound when there is no photo", func() {
			_, _, err := service.GetProfilePhoto(ctx, user.ID)
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})
})
