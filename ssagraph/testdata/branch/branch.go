package branch

func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Sign(x int) int {
	if x < 0 {
		return -1
	} else if x > 0 {
		return 1
	}
	return 0
}

func Caller(x int) int {
	return Abs(x) + 1
}

func MustNonZero(x int) {
	if x == 0 {
		panic("zero")
	}
}

func Loop(n int) int {
	var sum int
	for i := 0; i < n; i++ {
		sum += i
	}
	return sum
}
